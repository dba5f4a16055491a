package credentials

import (
	"encoding/hex"
	"testing"
)

func TestGenerateCustodyToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateCustodyToken()
		if err != nil {
			t.Fatalf("GenerateCustodyToken() error = %v", err)
		}
		if len(token) != TokenBytes*2 {
			t.Errorf("token length = %d, want %d", len(token), TokenBytes*2)
		}
		if _, err := hex.DecodeString(token); err != nil {
			t.Errorf("token %q is not hex: %v", token, err)
		}
		if seen[token] {
			t.Errorf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestGeneratePIN(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{name: "four digits", length: 4},
		{name: "six digits", length: 6},
		{name: "eight digits", length: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				pin, err := GeneratePIN(tt.length)
				if err != nil {
					t.Fatalf("GeneratePIN() error = %v", err)
				}
				if len(pin) != tt.length {
					t.Errorf("pin length = %d, want %d", len(pin), tt.length)
				}
				for _, c := range pin {
					if c < '0' || c > '9' {
						t.Errorf("pin %q contains non-digit %q", pin, c)
					}
				}
			}
		})
	}
}
