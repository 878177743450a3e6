package host

import "syscall"

// Maxrss is reported in kilobytes on Linux.
func maxRSSBytes(u *syscall.Rusage) int64 {
	return int64(u.Maxrss) * 1024
}
