//go:build unix

package healing

import "syscall"

// rssBytes returns the peak resident set size. Linux reports kilobytes and
// Darwin bytes; values under 100M are taken to be kilobytes.
func rssBytes() int64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	rss := int64(ru.Maxrss)
	if rss < 100_000_000 {
		return rss * 1024
	}
	return rss
}
