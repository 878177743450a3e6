//go:build unix && !linux

package host

import "syscall"

func maxRSSBytes(u *syscall.Rusage) int64 {
	return int64(u.Maxrss)
}
