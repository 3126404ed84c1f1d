// Package platform isolates the handful of OS-hardening calls the vault
// relies on so a process holding unwrapped key material cannot spill it to a
// core dump.
package platform

import "golang.org/x/sys/unix"

// DisableCoreDumps sets RLIMIT_CORE to zero for the current process. Callers
// that unwrap key material should do this once at startup; the call is
// idempotent and safe to retry.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	rlim.Cur = 0
	rlim.Max = 0
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
