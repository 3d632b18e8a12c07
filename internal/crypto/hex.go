package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chainkit/node/internal/chainerr"
)

// HexEncode renders b as a lower-case "0x"-prefixed hex string.
func HexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexDecode parses a "0x"-prefixed (or bare) hex string into bytes.
func HexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chainerr.ErrInvalidHex, err)
	}
	return b, nil
}

// HexDecodeFixed parses a hex string and requires it decode to exactly n bytes.
func HexDecodeFixed(s string, n int) ([]byte, error) {
	b, err := HexDecode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", chainerr.ErrInvalidHex, n, len(b))
	}
	return b, nil
}
