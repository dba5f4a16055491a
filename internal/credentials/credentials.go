package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// TokenBytes is the entropy of a custody token
const TokenBytes = 32

// GenerateCustodyToken returns a random, unguessable token identifying one
// custody record. It is printed, signed, into the QR label.
func GenerateCustodyToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GeneratePIN generates a random numeric PIN of the given length
func GeneratePIN(length int) (string, error) {
	const digits = "0123456789"
	pin := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		pin[i] = digits[num.Int64()]
	}

	return string(pin), nil
}
