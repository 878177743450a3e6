//go:build linux

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"chiko/internal/judge/sandbox/spec"
)

// stdio holds redirect targets opened ahead of installation, possibly from
// outside the chroot.
type stdio struct {
	stdin, stdout, stderr *os.File
}

func openStdio(s spec.InvocationSpec) (*stdio, error) {
	in, err := os.Open(orNull(s.Stdin))
	if err != nil {
		return nil, fmt.Errorf("open stdin: %w", err)
	}
	out, err := os.OpenFile(orNull(s.Stdout), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("open stdout: %w", err)
	}
	errFile, err := os.OpenFile(orNull(s.Stderr), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		_ = in.Close()
		_ = out.Close()
		return nil, fmt.Errorf("open stderr: %w", err)
	}
	return &stdio{stdin: in, stdout: out, stderr: errFile}, nil
}

// install replaces fds 0-2. Nothing may be written to stderr afterwards.
func (s *stdio) install() error {
	pairs := []struct {
		file *os.File
		fd   int
		name string
	}{
		{s.stdin, 0, "stdin"},
		{s.stdout, 1, "stdout"},
		{s.stderr, 2, "stderr"},
	}
	for _, p := range pairs {
		if err := unix.Dup2(int(p.file.Fd()), p.fd); err != nil {
			return fmt.Errorf("dup %s: %w", p.name, err)
		}
		_ = p.file.Close()
	}
	return nil
}

func orNull(p string) string {
	if p == "" {
		return os.DevNull
	}
	return p
}
