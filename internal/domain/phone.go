// Phone number canonicalization.
//
// The event's guest list is overwhelmingly single-country, so numbers are
// normalized into one of two canonical forms: international ("+" followed by
// digits, passed through untouched) or local (exactly 10 digits with a
// leading 0). The rules are deliberately lossy for malformed input — they
// force a 10-digit shape rather than reject — and validation is a separate,
// stricter step.
package domain

import (
	"errors"
	"regexp"
	"strings"
)

// countryPrefix is the international dialing prefix rewritten into local form.
const countryPrefix = "255"

var (
	// ErrPhoneRequired is returned by ValidatePhone for empty input.
	ErrPhoneRequired = errors.New("phone number is required")

	// ErrPhoneInvalid is returned by ValidatePhone when the input matches
	// neither canonical form.
	ErrPhoneInvalid = errors.New("phone number must start with 0 and have exactly 10 digits")

	// ErrPhoneInternational is returned for malformed "+"-prefixed numbers.
	ErrPhoneInternational = errors.New("invalid international phone number format")

	nonDigitRE       = regexp.MustCompile(`[^0-9]`)
	internationalRE  = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	localRE          = regexp.MustCompile(`^0\d{9}$`)
	whatsappRE       = regexp.MustCompile(`^255\d{9}$`)
	localDigitLength = 10
)

// NormalizePhone converts an arbitrary phone string to canonical form.
//
//   - "+"-prefixed input is trimmed and returned as-is.
//   - Otherwise all non-digits are stripped; a 12-digit number starting with
//     the country prefix is rewritten to local form (leading 0).
//   - The result is forced to exactly 10 digits with a leading 0: longer
//     input keeps its last 9 digits behind a fresh 0, shorter input is
//     right-padded with zeros.
//
// Empty input is returned unchanged; callers reject empty numbers as a
// required-field violation, not here.
func NormalizePhone(raw string) string {
	if raw == "" {
		return raw
	}

	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "+") {
		return s
	}

	digits := nonDigitRE.ReplaceAllString(s, "")

	if strings.HasPrefix(digits, countryPrefix) && len(digits) == len(countryPrefix)+9 {
		digits = "0" + digits[len(countryPrefix):]
	}

	if !strings.HasPrefix(digits, "0") {
		digits = "0" + digits
	}

	switch {
	case len(digits) > localDigitLength:
		digits = "0" + digits[len(digits)-9:]
	case len(digits) < localDigitLength:
		digits = digits + strings.Repeat("0", localDigitLength-len(digits))
	}

	return digits
}

// ValidatePhone checks that the input is in one of the two canonical forms.
// It does not normalize; run NormalizePhone first when accepting user input.
func ValidatePhone(raw string) error {
	if raw == "" {
		return ErrPhoneRequired
	}

	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "+") {
		if !internationalRE.MatchString(s) {
			return ErrPhoneInternational
		}
		return nil
	}

	if !localRE.MatchString(s) {
		return ErrPhoneInvalid
	}
	return nil
}

// FormatPhoneForWhatsApp rewrites a canonical phone number into the bare
// country-code form the WhatsApp Business API expects (255XXXXXXXXX).
// It returns an error when the input fits none of the recognized shapes.
func FormatPhoneForWhatsApp(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrPhoneRequired
	}

	if strings.HasPrefix(s, "+") {
		return s[1:], nil
	}
	if strings.HasPrefix(s, "0") && len(s) == localDigitLength {
		return countryPrefix + s[1:], nil
	}
	if whatsappRE.MatchString(s) {
		return s, nil
	}
	return "", ErrPhoneInvalid
}
