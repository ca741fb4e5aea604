//go:build otp_cachelinesize_128

package opt

// CacheLineSize_ forced to 128 via the otp_cachelinesize_128 build tag.
const CacheLineSize_ = 128
