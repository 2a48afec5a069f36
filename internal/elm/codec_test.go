package elm

import (
	"math"
	"reflect"
	"testing"
)

func TestDecodePID(t *testing.T) {
	tests := []struct {
		name string
		text string
		pid  string
		want float64
		ok   bool
	}{
		{"rpm spaced", "41 0C 0F A0", "0C", 1000, true},
		{"rpm packed with prompt", "410C0FA0\r\r>", "0C", 1000, true},
		{"coolant", "41 05 7D", "05", 85, true},
		{"speed after searching banner", "SEARCHING...\r41 0D 3C\r>", "0D", 60, true},
		{"throttle", "41 11 33", "11", 20.0, true},
		{"battery", "41 42 33 90", "42", 13.2, true},
		{"wrong pid acknowledged", "41 0D 3C", "0C", 0, false},
		{"truncated data", "41 0C 0F", "0C", 0, false},
		{"empty", "", "0C", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := DecodePID(tt.text, Descriptors[tt.pid])
			if ok != tt.ok {
				t.Fatalf("DecodePID(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if ok && math.Abs(v-tt.want) > 0.05 {
				t.Errorf("DecodePID(%q) = %v, want %v", tt.text, v, tt.want)
			}
		})
	}
}

func TestIsErrorResponse(t *testing.T) {
	errors := []string{
		"NO DATA",
		"no data",
		"UNABLE TO CONNECT",
		"BUS INIT: ...ERROR",
		"?",
		"Searching... error",
	}
	for _, s := range errors {
		if !IsErrorResponse(s) {
			t.Errorf("IsErrorResponse(%q) = false, want true", s)
		}
	}
	valid := []string{"41 0C 0F A0", "OK", "ELM327 v1.5", ""}
	for _, s := range valid {
		if IsErrorResponse(s) {
			t.Errorf("IsErrorResponse(%q) = true, want false", s)
		}
	}
}

func TestDecodeDTCs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"two codes", "43 02 01 33 04 20 00 00", []string{"P0133", "P0420"}},
		{"packed", "43020133042000 00", []string{"P0133", "P0420"}},
		{"zero pair terminates", "43 02 01 33 00 00 04 20", []string{"P0133"}},
		{"count only", "43 00", nil},
		{"no acknowledgement", "NO DATA", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeDTCs(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeDTCs(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsClearAck(t *testing.T) {
	if !IsClearAck("44\r\r>") {
		t.Error("expected 44 to acknowledge a clear")
	}
	if IsClearAck("NO DATA") {
		t.Error("NO DATA is not a clear acknowledgement")
	}
}

func TestDecodeDTCCategories(t *testing.T) {
	tests := []struct {
		a, b byte
		want string
	}{
		{0x01, 0x33, "P0133"},
		{0x04, 0x20, "P0420"},
		{0x41, 0x23, "C0123"},
		{0x81, 0x23, "B0123"},
		{0xC1, 0x00, "U0100"},
		{0x1A, 0xBC, "P1ABC"},
	}
	for _, tt := range tests {
		if got := DecodeDTC(tt.a, tt.b); got != tt.want {
			t.Errorf("DecodeDTC(%#02x, %#02x) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
