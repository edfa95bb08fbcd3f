// Package phone turns customer identifiers coming from chat and payment
// provider into one canonical dialable form. Every component joins on the
// canonical value, so normalization must not be repeated anywhere else.
package phone

import (
	"strings"
	"unicode"
)

// CountryCode is prepended to numbers written in local format
const CountryCode = "254"

const channelPrefix = "whatsapp:"

// stripSeparators drops whitespace anywhere in the input along with
// the punctuation people put between digit groups
func stripSeparators(r rune) rune {
	switch r {
	case '-', '.', '(', ')':
		return -1
	}
	if unicode.IsSpace(r) {
		return -1
	}
	return r
}

// Normalize returns canonical phone: country code followed by subscriber number, no "+".
// Input that does not look like a phone number is returned with prefixes and separators stripped.
func Normalize(raw string) string {
	p := strings.Map(stripSeparators, raw)

	// prefixes may be stacked in any order, strip until nothing changes
	for {
		prev := p
		if len(p) >= len(channelPrefix) && strings.EqualFold(p[:len(channelPrefix)], channelPrefix) {
			p = p[len(channelPrefix):]
		}
		p = strings.TrimPrefix(p, "+")
		p = strings.TrimPrefix(p, "00")
		if p == prev {
			break
		}
	}

	switch {
	case len(p) > 1 && p[0] == '0':
		// local trunk prefix
		return CountryCode + p[1:]
	case len(p) == 9 && isDigits(p) && (p[0] == '7' || p[0] == '1'):
		// subscriber number without trunk prefix
		return CountryCode + p
	}

	return p
}

// WhatsAppAddress formats canonical phone as chat channel address
func WhatsAppAddress(canonical string) string {
	return channelPrefix + "+" + canonical
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
