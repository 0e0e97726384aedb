// Package units converts between decimal ether strings, decimal integer
// strings and wei.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)

// ParseEther converts a decimal ether amount such as "0.01" to wei.
// More than 18 fractional digits is an error rather than a silent truncation.
func ParseEther(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty ether amount")
	}
	if strings.HasPrefix(raw, "-") {
		return nil, fmt.Errorf("negative ether amount %q", raw)
	}
	whole, fraction, _ := strings.Cut(raw, ".")
	if whole == "" && fraction == "" {
		return nil, fmt.Errorf("invalid ether amount %q", raw)
	}
	if whole == "" {
		whole = "0"
	}
	if len(fraction) > etherDecimals {
		return nil, fmt.Errorf("ether amount %q has more than %d decimals", raw, etherDecimals)
	}
	if !isDigits(whole) || (fraction != "" && !isDigits(fraction)) {
		return nil, fmt.Errorf("invalid ether amount %q", raw)
	}
	digits := whole + fraction + strings.Repeat("0", etherDecimals-len(fraction))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", raw)
	}
	return value, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros,
// e.g. 20000000000000000 -> "0.02" and 10^18 -> "1.0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	sign := ""
	value := new(big.Int).Set(wei)
	if value.Sign() < 0 {
		sign = "-"
		value.Neg(value)
	}
	whole, fraction := new(big.Int).QuoRem(value, weiPerEther, new(big.Int))
	fractionText := fraction.String()
	fractionText = strings.Repeat("0", etherDecimals-len(fractionText)) + fractionText
	fractionText = strings.TrimRight(fractionText, "0")
	if fractionText == "" {
		fractionText = "0"
	}
	return sign + whole.String() + "." + fractionText
}

// ParseUint parses a non-negative base-10 integer of arbitrary size.
func ParseUint(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !isDigits(raw) {
		return nil, fmt.Errorf("invalid unsigned integer %q", raw)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid unsigned integer %q", raw)
	}
	return value, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
