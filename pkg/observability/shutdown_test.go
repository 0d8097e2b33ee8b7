package observability

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "with custom timeout",
			timeout:         10 * time.Second,
			expectedTimeout: 10 * time.Second,
		},
		{
			name:            "with zero timeout uses default",
			timeout:         0,
			expectedTimeout: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, &bytes.Buffer{})
			server := &http.Server{}

			sm := NewShutdownManager(logger, server, tt.timeout)

			if sm == nil {
				t.Fatal("Expected non-nil shutdown manager")
			}

			if sm.shutdownTimeout != tt.expectedTimeout {
				t.Errorf("Expected timeout %v, got %v", tt.expectedTimeout, sm.shutdownTimeout)
			}

			if len(sm.shutdownFuncs) != 0 {
				t.Error("Expected empty shutdown functions slice")
			}
		})
	}
}

func TestRegisterShutdownFunc(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	sm.RegisterShutdownFunc("first", func(ctx context.Context) error {
		return nil
	})

	if len(sm.shutdownFuncs) != 1 {
		t.Errorf("Expected 1 shutdown function, got %d", len(sm.shutdownFuncs))
	}

	sm.RegisterShutdownFunc("second", func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc("third", func(ctx context.Context) error { return nil })

	if len(sm.shutdownFuncs) != 3 {
		t.Errorf("Expected 3 shutdown functions, got %d", len(sm.shutdownFuncs))
	}

	if sm.shutdownFuncs[0].name != "first" {
		t.Errorf("Expected name 'first', got %s", sm.shutdownFuncs[0].name)
	}

	// concurrent registration must be safe
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.RegisterShutdownFunc("concurrent", func(ctx context.Context) error {
				return nil
			})
		}()
	}
	wg.Wait()

	if len(sm.shutdownFuncs) != 13 {
		t.Errorf("Expected 13 shutdown functions, got %d", len(sm.shutdownFuncs))
	}
}

func TestWaitForShutdown(t *testing.T) {
	t.Run("runs registered shutdown functions on signal", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		sm := NewShutdownManager(logger, nil, 5*time.Second)

		var mu sync.Mutex
		var ran []string
		sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, "store")
			return nil
		})
		sm.RegisterShutdownFunc("cache", func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, "cache")
			return nil
		})

		done := make(chan error, 1)
		go func() {
			done <- sm.WaitForShutdown()
		}()

		// give WaitForShutdown time to install its signal handler
		time.Sleep(50 * time.Millisecond)
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
			t.Fatalf("Failed to send signal: %v", err)
		}

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Unexpected shutdown error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("Shutdown did not complete in time")
		}

		mu.Lock()
		defer mu.Unlock()
		if len(ran) != 2 {
			t.Errorf("Expected 2 shutdown functions to run, got %d", len(ran))
		}
	})

	t.Run("shuts down HTTP server", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		server := &http.Server{Addr: "127.0.0.1:0"}
		sm := NewShutdownManager(logger, server, 5*time.Second)

		done := make(chan error, 1)
		go func() {
			done <- sm.WaitForShutdown()
		}()

		time.Sleep(50 * time.Millisecond)
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
			t.Fatalf("Failed to send signal: %v", err)
		}

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Unexpected shutdown error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("Shutdown did not complete in time")
		}
	})
}
