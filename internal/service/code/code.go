package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generate returns a uniformly random numeric code of the given length,
// zero padded.
func Generate(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("Generate: unsupported length %d", digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
