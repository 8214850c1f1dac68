// Package hex provides shorter names for the encoding/hex functions this
// library uses constantly for event ids, pubkeys and signatures.
package hex

import "encoding/hex"

// Enc encodes b as a lowercase hex string.
func Enc(b []byte) string { return hex.EncodeToString(b) }

// EncAppend appends the lowercase hex encoding of src to dst.
func EncAppend(dst, src []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, hex.EncodedLen(len(src)))...)
	hex.Encode(dst[n:], src)
	return dst
}

// Dec decodes a hex string into bytes.
func Dec(s string) ([]byte, error) { return hex.DecodeString(s) }
