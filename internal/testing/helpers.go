// Package testing provides shared test helpers for the oracle packages.
//
// Using t.Fatal() or t.FailNow() in goroutines causes undefined behavior because
// these methods call runtime.Goexit() which only terminates the current goroutine,
// not the test goroutine. Concurrent tests report through TestHelper instead.
package testing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/feedoracle/internal/feed"
)

// TestHelper manages error collection from goroutines.
//
// Usage:
//
//	h := NewTestHelper(t)
//	for i := 0; i < 10; i++ {
//	    h.Go(func() error { return doSomething(i) })
//	}
//	h.Wait()
type TestHelper struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
}

// NewTestHelper creates a new test helper.
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		t:      t,
		errors: make(chan error, 100),
	}
}

// Go runs fn in a goroutine and records its error.
func (h *TestHelper) Go(fn func() error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(); err != nil {
			h.Error(err)
		}
	}()
}

// Errorf records a test error from a goroutine.
// This is safe to call from any goroutine.
func (h *TestHelper) Errorf(format string, args ...interface{}) {
	h.Error(fmt.Errorf(format, args...))
}

// Error records a test error from a goroutine.
func (h *TestHelper) Error(err error) {
	if err == nil {
		return
	}
	select {
	case h.errors <- err:
	default:
		// Buffer full, error will be lost but test will still fail
	}
}

// Wait waits for all goroutines and reports any errors.
func (h *TestHelper) Wait() {
	h.wg.Wait()
	close(h.errors)

	var failed bool
	for err := range h.errors {
		h.t.Errorf("goroutine error: %v", err)
		failed = true
	}

	if failed {
		h.t.FailNow()
	}
}

// RunWithTimeout runs a function with a timeout.
func RunWithTimeout(timeout time.Duration, fn func()) error {
	done := make(chan struct{})

	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout after %v", timeout)
	}
}

// =============================================================================
// Feed fixtures
// =============================================================================

// Demo enumerable values: source 0, asset 1.
const (
	DemoSource uint8 = 0
	DemoAsset  uint8 = 1
)

// DemoParams returns the [source, asset] parameters used across tests.
func DemoParams() feed.Parameters {
	return feed.Enum(DemoSource, DemoAsset)
}

// ExpiryParams returns demo parameters carrying an expiry timestamp.
func ExpiryParams(expiry int64) feed.Parameters {
	return feed.MustParameters([]uint8{DemoSource, DemoAsset}, map[string]any{
		feed.KeyExpiryTimestamp: expiry,
	})
}

// OptionParams returns demo option parameters.
func OptionParams(expiry int64, strike float64, isCall, isDigital bool) feed.Parameters {
	return feed.MustParameters([]uint8{DemoSource, DemoAsset}, map[string]any{
		feed.KeyExpiryTimestamp: expiry,
		feed.KeyStrike:          strike,
		feed.KeyIsCall:          isCall,
		feed.KeyIsDigital:       isDigital,
	})
}
