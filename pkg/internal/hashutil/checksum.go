// Package hashutil computes the content digests riceify uses to decide
// whether a file changed and to address stored file bodies.
package hashutil

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// Supported digest algorithms
const (
	AlgoXXH3   = "xxh3"
	AlgoSHA256 = "sha256"
)

// DefaultAlgo is used when no algorithm is configured
const DefaultAlgo = AlgoXXH3

// Hasher produces prefixed digests such as "xxh3:<hex>".
type Hasher struct {
	algo string
}

// New returns a Hasher for algo. An empty algo selects DefaultAlgo.
func New(algo string) (Hasher, error) {
	switch algo {
	case "":
		return Hasher{algo: DefaultAlgo}, nil
	case AlgoXXH3, AlgoSHA256:
		return Hasher{algo: algo}, nil
	default:
		return Hasher{}, fmt.Errorf("unknown hash algorithm %q", algo)
	}
}

// Default returns the xxh3 hasher.
func Default() Hasher {
	return Hasher{algo: DefaultAlgo}
}

// Algo returns the algorithm name.
func (h Hasher) Algo() string {
	if h.algo == "" {
		return DefaultAlgo
	}
	return h.algo
}

// Sum returns the prefixed digest of data.
func (h Hasher) Sum(data []byte) string {
	switch h.Algo() {
	case AlgoSHA256:
		return fmt.Sprintf("%s:%x", AlgoSHA256, sha256.Sum256(data))
	default:
		sum := xxh3.Hash128(data).Bytes()
		return fmt.Sprintf("%s:%x", AlgoXXH3, sum[:])
	}
}

// Verify reports whether digest is the digest of data under digest's own algorithm.
func Verify(digest string, data []byte) bool {
	algo, _, ok := Split(digest)
	if !ok {
		return false
	}
	h, err := New(algo)
	if err != nil {
		return false
	}
	return h.Sum(data) == digest
}

// Split separates a prefixed digest into its algorithm and hex parts.
func Split(digest string) (algo, hex string, ok bool) {
	algo, hex, ok = strings.Cut(digest, ":")
	if !ok || algo == "" || len(hex) < 4 {
		return "", "", false
	}
	return algo, hex, true
}
