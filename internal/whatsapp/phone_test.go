package whatsapp

import "testing"

func TestFormatPhoneNumber(t *testing.T) {
	cases := []struct{ in, want string }{
		{"081234567890", "6281234567890"},
		{"+62 812-3456-7890", "6281234567890"},
		{"81234567890", "6281234567890"},
		{"6281234567890", "6281234567890"},
		{"(021) 555 1234", "62215551234"},
		{"", "62"},
	}
	for _, tc := range cases {
		got := FormatPhoneNumber(tc.in)
		if got != tc.want {
			t.Fatalf("FormatPhoneNumber(%q) = %q; want %q", tc.in, got, tc.want)
		}
		if again := FormatPhoneNumber(got); again != got {
			t.Fatalf("not idempotent: %q -> %q", got, again)
		}
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	cases := map[string]bool{
		"0812-3456":         true,  // 8 digits
		"1234567":           false, // 7 digits
		"+62 812 3456 7890": true,
		"1234567890123456":  false, // 16 digits
		"abc":               false,
	}
	for in, want := range cases {
		if got := ValidatePhoneNumber(in); got != want {
			t.Fatalf("ValidatePhoneNumber(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestIsValidWaID(t *testing.T) {
	if !IsValidWaID("6281234567890") {
		t.Fatalf("expected valid wa_id")
	}
	for _, bad := range []string{"62812", "+6281234567890", "62812345678901234"} {
		if IsValidWaID(bad) {
			t.Fatalf("IsValidWaID(%q) = true", bad)
		}
	}
}
