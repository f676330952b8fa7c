package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/prompta/internal/home"
)

const pollInterval = 100 * time.Millisecond

// Home creates an initialised prompta home under t.TempDir().
func Home(t *testing.T) *home.Dir {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err == nil {
		err = h.EnsureExists()
	}
	if err != nil {
		t.Fatalf("test home: %v", err)
	}
	return h
}

// WaitForServer blocks until GET baseURL/ready answers 200. A 503 means the
// store is still opening and is retried like a refused connection.
func WaitForServer(baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := &http.Client{Timeout: 2 * time.Second}
	err := retry.Do(
		func() error {
			resp, err := client.Get(baseURL + "/ready")
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("ready returned %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("server at %s not ready after %v: %w", baseURL, timeout, err)
	}
	return nil
}

// WaitForShutdown returns what Start sent on done, or an error after timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.New("server did not shut down in time")
	}
}

// HTTPClient is the client tests use against a running server.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// FindFreePort asks the kernel for an unused loopback port.
func FindFreePort() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return "", err
	}
	return strconv.Itoa(port), nil
}

// StartServer stops a server started in a goroutine:
//
//	done := make(chan error, 1)
//	go func() { done <- srv.Start(ctx) }()
//	t.Cleanup((&testutil.StartServer{Cancel: cancel, Done: done}).Stop)
type StartServer struct {
	Cancel context.CancelFunc
	Done   <-chan error
}

// Stop cancels the server context and waits for Start to return.
func (s *StartServer) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
	if s.Done != nil {
		<-s.Done
	}
}
