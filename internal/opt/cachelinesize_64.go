//go:build otp_cachelinesize_64

package opt

// CacheLineSize_ forced to 64 via the otp_cachelinesize_64 build tag.
const CacheLineSize_ = 64
