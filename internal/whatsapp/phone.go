package whatsapp

import "strings"

// CountryCode is prepended to national numbers.
const CountryCode = "62"

// digitsOnly drops every non-digit rune.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhoneNumber converts a free-form phone number to the gateway's
// international form: non-digits are stripped, a leading 0 becomes the
// country code, and numbers without the country code get it prepended.
// The function is idempotent.
func FormatPhoneNumber(phone string) string {
	n := digitsOnly(phone)
	if strings.HasPrefix(n, "0") {
		n = CountryCode + n[1:]
	}
	if !strings.HasPrefix(n, CountryCode) {
		n = CountryCode + n
	}
	return n
}

// ValidatePhoneNumber reports whether phone has 8 to 15 digits once
// non-digits are removed.
func ValidatePhoneNumber(phone string) bool {
	n := len(digitsOnly(phone))
	return n >= 8 && n <= 15
}

// IsValidWaID reports whether id looks like a gateway address: 10 to 15
// digits and nothing else.
func IsValidWaID(id string) bool {
	if len(id) < 10 || len(id) > 15 {
		return false
	}
	return digitsOnly(id) == id
}
