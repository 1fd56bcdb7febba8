package conversation

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

const anyToken = "ANY"

var (
	ErrAmountFormat = errors.New("conversation: amount must be min-max")
	ErrAmountOrder  = errors.New("conversation: min amount exceeds max amount")
	ErrBadNumber    = errors.New("conversation: not a number")
)

// AmountRange is an order-size filter. Max is +Inf when unbounded.
type AmountRange struct {
	Min float64
	Max float64
}

// ParseAmountRange parses "min-max" where either side may be ANY
// (case-insensitive). Spaces around the parts are ignored.
func ParseAmountRange(text string) (AmountRange, error) {
	parts := strings.Split(strings.TrimSpace(text), "-")
	if len(parts) != 2 {
		return AmountRange{}, ErrAmountFormat
	}
	lo, err := parseBound(parts[0], 0)
	if err != nil {
		return AmountRange{}, err
	}
	hi, err := parseBound(parts[1], math.Inf(1))
	if err != nil {
		return AmountRange{}, err
	}
	if lo > hi {
		return AmountRange{}, ErrAmountOrder
	}
	return AmountRange{Min: lo, Max: hi}, nil
}

func parseBound(part string, anyValue float64) (float64, error) {
	part = strings.TrimSpace(part)
	if strings.EqualFold(part, anyToken) {
		return anyValue, nil
	}
	v, err := parseFinite(part)
	if err != nil {
		return 0, ErrAmountFormat
	}
	return v, nil
}

// ParsePremium accepts any finite number, negatives included.
func ParsePremium(text string) (float64, error) {
	return parseFinite(strings.TrimSpace(text))
}

func parseFinite(s string) (float64, error) {
	if s == "" {
		return 0, ErrBadNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrBadNumber
	}
	return v, nil
}

func formatNumber(v float64) string {
	if math.IsInf(v, 1) {
		return anyToken
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
