package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex fragments. Whitespace and ':' separators are
// ignored so that frames can be written as "A0 21 00 00" or "a0:21:00:00".
// It panics on malformed input and is meant for fixtures and constants.
func Hex(parts ...string) []byte {
	clean := strings.Join(strings.Fields(strings.ReplaceAll(strings.Join(parts, " "), ":", " ")), "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid hex %q: %v", clean, err))
	}
	return data
}
