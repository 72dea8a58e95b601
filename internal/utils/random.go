package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	digits    = "0123456789"
	lowers    = "abcdefghijklmnopqrstuvwxyz"
	uppers    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	symbols   = "!@#$%^&*"
	alnumLow  = lowers + digits
	passChars = lowers + uppers + digits + symbols
)

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

func randomFrom(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		b, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		out[i] = b
	}
	return string(out), nil
}

// GenerateCode returns a 4-digit one-time code.
func GenerateCode() (string, error) { return randomFrom(digits, 4) }

// GenerateLoginSuffix returns 6 lowercase alphanumeric characters.
func GenerateLoginSuffix() (string, error) { return randomFrom(alnumLow, 6) }

// GeneratePassword returns a 12-character password with at least one
// uppercase letter, one digit and one symbol.
func GeneratePassword() (string, error) {
	const length = 12
	buf := make([]byte, 0, length)
	for _, set := range []string{uppers, digits, symbols} {
		b, err := pick(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
	}
	rest, err := randomFrom(passChars, length-len(buf))
	if err != nil {
		return "", err
	}
	buf = append(buf, rest...)
	// Fisher-Yates so the guaranteed classes are not always in front.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

// RandomHex exposes randomHex for file names and request ids.
func RandomHex(n int) (string, error) { return randomHex(n) }
