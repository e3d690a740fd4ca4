package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"only whitespace", "   \t\n ", ""},
		{"leading and trailing", "  HTL-1  ", "HTL-1"},
		{"inner runs collapse", "Grand   Hotel\t\tRome", "Grand Hotel Rome"},
		{"newlines collapse", "Late\ncheckout", "Late checkout"},
		{"unicode preserved", "  Café  Roma ", "Café Roma"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.expected {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeKey_Idempotent(t *testing.T) {
	inputs := []string{"  HTL-1 ", "FL  TLV-JFK", "", "sight\tseeing"}
	for _, in := range inputs {
		once := NormalizeKey(in)
		if twice := NormalizeKey(once); twice != once {
			t.Errorf("NormalizeKey not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizePerk_KeepsCase(t *testing.T) {
	if got := NormalizePerk("  Late   checkout "); got != "Late checkout" {
		t.Errorf("NormalizePerk() = %q, want %q", got, "Late checkout")
	}
}
