package fuzzy

import (
	"bytes"
	"fmt"

	"github.com/glaslos/tlsh"
)

// tlshMinBytes is the smallest input TLSH produces a digest for.
const tlshMinBytes = 50

type TLSHHasher struct{}

func (h TLSHHasher) Name() string {
	return "tlsh"
}

func (h TLSHHasher) HashBytes(data []byte) (string, error) {
	if len(data) < tlshMinBytes {
		return "", fmt.Errorf("tlsh needs at least %d bytes, got %d", tlshMinBytes, len(data))
	}
	hash, err := tlsh.HashReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func init() {
	Register(TLSHHasher{})
}
