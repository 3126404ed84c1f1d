package crypto

// Zero overwrites a byte slice in memory with zeros.
// This version works on all operating systems.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroGuarded unlocks a previously mlock'd buffer (best effort) and zeros it.
// Safe to call on a nil or empty slice.
func ZeroGuarded(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unlockMemory(b)
	Zero(b)
}
