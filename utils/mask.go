package utils

import "strings"

// MaskFirstName reduces a customer name to its first token for affiliate-facing
// views. Affiliates must never see full customer identities.
func MaskFirstName(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// MaskPhone partially hides a phone number, keeping the leading two digits and
// the trailing three: "03001234567" -> "03XX-***567". Numbers too short to
// mask meaningfully come back fully hidden.
func MaskPhone(phone string) string {
	digits := strings.Builder{}
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 7 {
		return "***"
	}
	return d[:2] + "XX-***" + d[len(d)-3:]
}
