package model

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Unit decimals accepted by ParseAmount.
var unitDecimals = map[string]int{
	"wei":   0,
	"gwei":  9,
	"ether": 18,
	"eth":   18,
}

// ParseAmount parses "10000000000000000", "0.01 ether" or "5gwei" into wei.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	decimals := 0
	for unit, d := range unitDecimals {
		if strings.HasSuffix(s, unit) {
			trimmed := strings.TrimSpace(strings.TrimSuffix(s, unit))
			// "gwei" also ends in "wei"; prefer the longest unit.
			if unit == "wei" && strings.HasSuffix(trimmed, "g") {
				continue
			}
			s = trimmed
			decimals = d
			break
		}
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// AmountString renders a nil-safe decimal representation.
func AmountString(a *uint256.Int) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}

// CloneAmount returns a copy, treating nil as zero.
func CloneAmount(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return a.Clone()
}
