package otp

import (
	"sync"
	"testing"
	"time"
)

func TestDelayBlocksQuiescence(t *testing.T) {
	h := thrDelay()

	done := make(chan struct{})
	go func() {
		thrWaitQuiescent()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("quiescence reached with a delay section open")
	case <-time.After(20 * time.Millisecond):
	}

	h.thrContinue()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("quiescence never reached after continue")
	}
}

func TestDelaySectionsAfterFlipDoNotBlock(t *testing.T) {
	// A section opened after the flip belongs to the new epoch; the
	// reclaimer must not wait for it.
	h := thrDelay()
	e0 := thrProg.epoch.Load()
	done := make(chan struct{})
	go func() {
		thrWaitQuiescent()
		close(done)
	}()
	waitUntil(t, "epoch flip", func() bool { return thrProg.epoch.Load() != e0 })
	h2 := thrDelay()
	h.thrContinue()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("reclaimer waited for a post-flip section")
	}
	h2.thrContinue()
}

func TestDelayStress(t *testing.T) {
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				h := thrDelay()
				h.thrContinue()
			}
		}()
	}
	for range 50 {
		thrWaitQuiescent()
	}
	close(stop)
	wg.Wait()

	if thrProg.active[0].c.Load() != 0 || thrProg.active[1].c.Load() != 0 {
		t.Fatalf("section counters not drained: %d %d",
			thrProg.active[0].c.Load(), thrProg.active[1].c.Load())
	}
}
