package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	"piigate/internal/core"
)

const (
	hashTokenPrefix = "[HASH:"
	hashTokenHexLen = 16
	hkdfInfoPrefix  = "piigate hash key v1 "
)

// hasher produces keyed BLAKE2b-256 tokens for one salt reference.
type hasher struct {
	pool sync.Pool
}

func newHasher(ref string, secret []byte) (*hasher, error) {
	if len(secret) == 0 {
		return nil, core.NewConfigError("salts."+ref, "secret is empty")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfoPrefix+ref))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, core.NewConfigError("salts."+ref, "deriving key: %v", err)
	}
	// validate the key once so the pool never sees an error
	if _, err := blake2b.New256(key); err != nil {
		return nil, core.NewConfigError("salts."+ref, "%v", err)
	}
	h := &hasher{}
	h.pool.New = func() any {
		m, _ := blake2b.New256(key)
		return m
	}
	return h, nil
}

func (h *hasher) token(value string) string {
	m := h.pool.Get().(hash.Hash)
	defer h.pool.Put(m)

	m.Reset()
	_, _ = io.WriteString(m, value)
	var sum [blake2b.Size256]byte
	m.Sum(sum[:0])

	buf := make([]byte, 0, len(hashTokenPrefix)+hashTokenHexLen+1)
	buf = append(buf, hashTokenPrefix...)
	buf = hex.AppendEncode(buf, sum[:hashTokenHexLen/2])
	buf = append(buf, ']')
	return string(buf)
}

// IsHashToken reports whether s already is a HASH rendering.
func IsHashToken(s string) bool {
	if len(s) != len(hashTokenPrefix)+hashTokenHexLen+1 || s[:len(hashTokenPrefix)] != hashTokenPrefix || s[len(s)-1] != ']' {
		return false
	}
	for i := len(hashTokenPrefix); i < len(s)-1; i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
