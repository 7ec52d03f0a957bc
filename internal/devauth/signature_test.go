package devauth

import (
	"strings"
	"testing"
)

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"", "", true},
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "xbc", false},
		{"abc", "abcd", false},
		{"abcd", "abc", false},
		{"", "a", false},
		{strings.Repeat("f", 64), strings.Repeat("f", 64), true},
		{strings.Repeat("f", 64), strings.Repeat("f", 63) + "e", false},
	}
	for _, tt := range tests {
		if got := ConstantTimeEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("ConstantTimeEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestConstantTimeEqual_AllSingleByteFlips(t *testing.T) {
	base := []byte("0123456789abcdef")
	for i := range base {
		flipped := append([]byte(nil), base...)
		flipped[i] ^= 0x01
		if ConstantTimeEqual(string(base), string(flipped)) {
			t.Fatalf("flip at %d compared equal", i)
		}
	}
}

func TestHMACHex(t *testing.T) {
	// RFC 4231 test case 2.
	got := HMACHex("Jefe", "what do ya want for nothing?")
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Fatalf("HMACHex = %s, want %s", got, want)
	}
	if HMACHex("Jefe", "what do ya want for nothing?") != got {
		t.Fatal("HMACHex is not deterministic")
	}
}

func TestSigningString(t *testing.T) {
	if got := SigningString("1700000000", nil); got != "1700000000." {
		t.Errorf("bodiless signing string = %q", got)
	}
	if got := SigningString("1700000000", []byte(`{"a":1}`)); got != `1700000000.{"a":1}` {
		t.Errorf("signing string = %q", got)
	}
}
