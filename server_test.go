package main

import (
	"sync"
	"testing"
)

// The wired services are stored by main after the listener is already serving,
// so the accessor must be safe to call from handler goroutines while startup
// is still connecting dependencies. Run with -race.
func TestAppAccessorSafeDuringStartupWiring(t *testing.T) {
	prev := appRef.Load()
	t.Cleanup(func() { appRef.Store(prev) })

	appRef.Store(nil)
	if app() != nil {
		t.Fatal("services visible before wiring")
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 1000; j++ {
				_ = app()
			}
		}()
	}

	close(start)
	appRef.Store(&appServices{})
	wg.Wait()

	if app() == nil {
		t.Fatal("services not visible after wiring")
	}
}
