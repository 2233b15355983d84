package carriers

import (
	"errors"
	"strings"
)

type Carrier string

const (
	Safaricom Carrier = "SAFARICOM"
	Airtel    Carrier = "AIRTEL"
	Telkom    Carrier = "TELKOM"
	Unknown   Carrier = "UNKNOWN"
)

var ErrUnknownCarrier = errors.New("carriers: unknown or malformed number")

// Kenyan mobile prefix allocations, 4-digit local prefixes inclusive on both
// ends. Lexicographic compare is safe because all entries are equal length.
var prefixRanges = []struct {
	lo, hi  string
	carrier Carrier
}{
	{"0701", "0729", Safaricom},
	{"0740", "0743", Safaricom},
	{"0745", "0746", Safaricom},
	{"0748", "0748", Safaricom},
	{"0757", "0759", Safaricom},
	{"0768", "0769", Safaricom},
	{"0790", "0799", Safaricom},
	{"0110", "0119", Safaricom},
	{"0730", "0739", Airtel},
	{"0750", "0756", Airtel},
	{"0762", "0762", Airtel},
	{"0780", "0789", Airtel},
	{"0100", "0106", Airtel},
	{"0770", "0779", Telkom},
}

// Normalize maps the representations seen in callbacks (+2547..., 2547...,
// 07...) to the canonical local form: ten digits with a leading zero.
func Normalize(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "254") && len(s) == 12 {
		s = "0" + s[3:]
	}

	if len(s) != 10 || !allDigits(s) {
		return "", ErrUnknownCarrier
	}
	if !strings.HasPrefix(s, "07") && !strings.HasPrefix(s, "01") {
		return "", ErrUnknownCarrier
	}
	return s, nil
}

// Classify maps a phone number in any accepted representation to its
// operator. Pure lookup, no I/O.
func Classify(raw string) (Carrier, error) {
	n, err := Normalize(raw)
	if err != nil {
		return Unknown, err
	}

	prefix := n[:4]
	for _, r := range prefixRanges {
		if prefix >= r.lo && prefix <= r.hi {
			return r.carrier, nil
		}
	}
	return Unknown, ErrUnknownCarrier
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
