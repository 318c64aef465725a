package vouchers

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CodeLength is the number of characters in a voucher code.
const CodeLength = 16

// codeAlphabet omits I, O, 0 and 1. Its length divides 256, so masking a random
// byte yields an unbiased index.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a fresh opaque voucher code from crypto/rand.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, CodeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)&(len(codeAlphabet)-1)]
	}
	return string(out), nil
}

// NormalizeCode upper-cases and trims user input.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidCode reports whether code has the generator's shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// QRKey is the deterministic blob key of a voucher's QR image.
func QRKey(code string) string {
	return "vouchers/qr/" + code + ".png"
}

// RedemptionURL is the payload encoded in the QR image.
func RedemptionURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/voucher/" + code + "/redeem"
}
