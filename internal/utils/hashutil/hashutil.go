package hashutil

import (
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Blake3HashFiles hashes the contents of the given files in order and
// returns one combined digest. Used to fingerprint model artifacts.
func Blake3HashFiles(paths ...string) (string, error) {
	h := blake3.New(32, nil)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}

		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
