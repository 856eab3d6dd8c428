package attendance

import (
	"crypto/sha256"
	"encoding/hex"
)

// CodeLength is the number of digits in a participant code.
const CodeLength = 4

// HashCode returns the salted digest used to look up a participant code.
func HashCode(salt, classID, code string) string {
	sum := sha256.Sum256([]byte(salt + "|" + classID + "|" + code))
	return hex.EncodeToString(sum[:])
}

// ValidCode reports whether code is exactly four ASCII digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func validate(code, deviceID string) error {
	if !ValidCode(code) {
		return &ValidationError{Field: "code", Message: "must be exactly 4 digits"}
	}
	if deviceID == "" {
		return &ValidationError{Field: "device_id", Message: "required"}
	}
	return nil
}
