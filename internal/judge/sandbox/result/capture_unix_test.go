//go:build unix

package result

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	appErr "chiko/pkg/errors"
)

func TestReadCaptureRefusesSpecialFiles(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret")
	if err := os.WriteFile(secret, []byte("HOST-ONLY-DATA"), 0600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	cases := []struct {
		name  string
		setup func(path string) error
	}{
		{"symlink", func(path string) error { return os.Symlink(secret, path) }},
		{"fifo", func(path string) error { return unix.Mkfifo(path, 0666) }},
		{"directory", func(path string) error { return os.Mkdir(path, 0755) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".txt")
			if err := tc.setup(path); err != nil {
				t.Fatalf("setup: %v", err)
			}

			type readResult struct {
				data string
				err  error
			}
			done := make(chan readResult, 1)
			go func() {
				data, err := ReadCapture(path, 0)
				done <- readResult{data, err}
			}()
			select {
			case got := <-done:
				if !appErr.Is(got.err, appErr.CaptureFailed) {
					t.Fatalf("expected CaptureFailed, got %v", got.err)
				}
				if got.data != "" {
					t.Fatalf("expected no data, got %q", got.data)
				}
			case <-time.After(3 * time.Second):
				t.Fatalf("read capture blocked")
			}
		})
	}
}
