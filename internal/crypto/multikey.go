package crypto

import "edv-core/internal/idcodec"

// encodeMultikey prepends a two-byte multicodec header to raw key bytes and
// multibase-encodes the result, the format the design uses for
// publicKeyMultibase/privateKeyMultibase.
func encodeMultikey(prefix string, raw []byte) (string, error) {
	buf := make([]byte, 0, len(prefix)+len(raw))
	buf = append(buf, prefix...)
	buf = append(buf, raw...)
	return idcodec.Encode(buf)
}
