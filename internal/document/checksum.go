package document

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
)

// Algorithm selects the digest used for content fingerprints. SHA-256 is the
// primary store's choice; MD5 exists for a legacy ingest line and BLAKE3 for
// bulk ingest where hashing dominates upload time.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
	BLAKE3 Algorithm = "blake3"
)

// DefaultAlgorithm is used when the caller does not pick one.
const DefaultAlgorithm = SHA256

const hashChunkSize = 64 * 1024

func newHasher(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case SHA256, "":
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported digest algorithm %q", ErrInvalidInput, alg)
	}
}

// ComputeDigest streams content through the selected hash in fixed-size
// chunks and returns the hex digest. The reader is consumed to EOF; content
// is never buffered whole.
func ComputeDigest(alg Algorithm, r io.Reader) (string, error) {
	h, err := newHasher(alg)
	if err != nil {
		return "", err
	}
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
