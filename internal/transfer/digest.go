package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest reports two independent post-transfer digests of the same file,
// computed out of band from the wire protocol: SHA-256, the external test
// property spec.md §9 requires equal-hash-implies-equal-content on, and
// BLAKE3, a fast digest the CLI's --verify flag surfaces for human spot
// checks. Neither digest crosses the wire; the sender and receiver each
// compute their own from their own copy of the file, and nothing here
// implies a comparison between the two sides — that would need a new frame
// kind, which spec.md §9 explicitly declines to add.
func Digest(path string) (sha256Hex, blake3Hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	sh := sha256.New()
	bh := blake3.New()
	if _, err := io.Copy(io.MultiWriter(sh, bh), f); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(sh.Sum(nil)), hex.EncodeToString(bh.Sum(nil)), nil
}
