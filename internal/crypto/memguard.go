//go:build linux || darwin

package crypto

import "golang.org/x/sys/unix"

// lockMemory pins b's pages so the kernel never swaps them to disk while they
// hold key material. Best effort: callers ignore the error on platforms or
// under ulimits where mlock is unavailable.
func lockMemory(b []byte) error   { return unix.Mlock(b) }
func unlockMemory(b []byte) error { return unix.Munlock(b) }
