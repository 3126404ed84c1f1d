package crypto

import "edv-core/internal/platform"

// Any process that links this package holds key material in memory sooner
// or later; disable core dumps once at load time so a crash cannot spill it
// to disk. Best effort: ignored where the platform or sandbox disallows it.
func init() {
	_ = platform.DisableCoreDumps()
}
