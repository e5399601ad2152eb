package engine

import (
	"crypto/rand"
	"encoding/hex"
)

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// randomSecret returns a fresh 32-byte key, used when no persistent
// ticket secret is configured. crypto/rand is the stdlib's own CSPRNG;
// nothing in the example pack wraps key generation in a third-party
// library, so this one helper stays on the standard library.
func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("engine: failed to read random ticket secret: " + err.Error())
	}
	return b
}
