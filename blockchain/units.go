package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var (
	ErrInvalidAmount = errors.New("invalid ether amount")

	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)
)

// ParseEther converts a decimal ether string such as "0.01" into wei.
// Signs, exponents and more than 18 fractional digits are rejected.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, etherDecimals)
	}

	digits := whole + frac + strings.Repeat("0", etherDecimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return wei, nil
}

// MustParseEther is ParseEther for constants.
func MustParseEther(s string) *big.Int {
	wei, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return wei
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	out := r.FloatString(etherDecimals)
	if strings.Contains(out, ".") {
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	return out
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
