// Package randompkg provides functionality for generating random application common items.
package randompkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// Intn is a shortcut for generating a random integer between 0 and max using crypto/rand.
func Intn(max int) int64 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(err)
	}

	return nBig.Int64()
}

// Float64 is a shortcut for generating a random float between 0 and 1 using crypto/rand.
func Float64() float64 {
	return float64(Intn(1<<32)) / (1 << 32)
}

// String generates a random string of length n.
func String(n int) string {
	var sb strings.Builder

	k := len(alphabet)

	for i := 0; i < n; i++ {
		c := alphabet[Intn(k)]

		_ = sb.WriteByte(c) // The returned err is always nil.
	}

	return sb.String()
}

// AccountID generates a random external account identifier.
func AccountID() string {
	return fmt.Sprintf("%d", 100_000_000+Intn(900_000_000))
}

// Owner generates a random display name.
func Owner() string {
	return String(6)
}

// PixKey generates a random email-style pix key.
func PixKey() string {
	return String(8) + "@" + String(5) + ".com"
}

// MoneyAmountBetween generates a random decimal money amount between min and max.
func MoneyAmountBetween(min, max float64) string {
	amount := min + Float64()*(max-min)
	return decimal.NewFromFloat(amount).Round(2).String()
}
