package crypto

import "crypto/subtle"

// Zero overwrites b with zeros in a way the compiler will not elide.
// Secret material that leaves scope goes through here.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}
