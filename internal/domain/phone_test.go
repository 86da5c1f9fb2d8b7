package domain

import (
	"errors"
	"testing"
)

func TestNormalizePhone_CanonicalForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already local", "0712345678", "0712345678"},
		{"country prefix", "255712345678", "0712345678"},
		{"bare subscriber", "712345678", "0712345678"},
		{"international passthrough", "+255712345678", "+255712345678"},
		{"international trimmed", "  +14155550100 ", "+14155550100"},
		{"spaces and dashes", "0712 345-678", "0712345678"},
		{"parentheses", "(0712) 345 678", "0712345678"},
		{"too long keeps last nine", "2550712345678", "0712345678"},
		{"short right-padded", "07123", "0712300000"},
		{"empty unchanged", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePhone(tc.in); got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q; want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	inputs := []string{
		"0712345678",
		"255712345678",
		"712345678",
		"+255712345678",
		"0712 345 678",
		"123456789012345",
	}
	for _, in := range inputs {
		once := NormalizePhone(in)
		twice := NormalizePhone(once)
		if once != twice {
			t.Fatalf("NormalizePhone not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	if err := ValidatePhone(""); !errors.Is(err, ErrPhoneRequired) {
		t.Fatalf("empty: expected ErrPhoneRequired, got %v", err)
	}
	if err := ValidatePhone("12345"); !errors.Is(err, ErrPhoneInvalid) {
		t.Fatalf("short: expected ErrPhoneInvalid, got %v", err)
	}
	if err := ValidatePhone("0712345678"); err != nil {
		t.Fatalf("valid local rejected: %v", err)
	}
	if err := ValidatePhone("07123456789"); !errors.Is(err, ErrPhoneInvalid) {
		t.Fatalf("11 digits: expected ErrPhoneInvalid, got %v", err)
	}
	if err := ValidatePhone("+255712345678"); err != nil {
		t.Fatalf("valid international rejected: %v", err)
	}
	if err := ValidatePhone("+0712345678"); !errors.Is(err, ErrPhoneInternational) {
		t.Fatalf("leading zero after plus: expected ErrPhoneInternational, got %v", err)
	}
}

func TestFormatPhoneForWhatsApp(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0712345678", "255712345678", false},
		{"+255712345678", "255712345678", false},
		{"255712345678", "255712345678", false},
		{"", "", true},
		{"12345", "", true},
	}
	for _, tc := range cases {
		got, err := FormatPhoneForWhatsApp(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("FormatPhoneForWhatsApp(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("FormatPhoneForWhatsApp(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("FormatPhoneForWhatsApp(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
