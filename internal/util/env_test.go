package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "unset uses default", value: "", def: true, expected: true},
		{name: "true", value: "true", def: false, expected: true},
		{name: "mixed case yes", value: "YeS", def: false, expected: true},
		{name: "numeric on", value: "1", def: false, expected: true},
		{name: "off", value: "off", def: true, expected: false},
		{name: "padded false", value: " false ", def: true, expected: false},
		{name: "garbage uses default", value: "maybe", def: true, expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "BLIGHT_TEST_BOOL"
			t.Setenv(key, tt.value)
			if got := ParseBoolEnv(key, tt.def); got != tt.expected {
				t.Errorf("ParseBoolEnv(%q)=%v, expected %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      int
		expected int
	}{
		{name: "unset uses default", value: "", def: 30, expected: 30},
		{name: "valid", value: "7", def: 30, expected: 7},
		{name: "padded", value: " 45 ", def: 30, expected: 45},
		{name: "negative", value: "-2", def: 30, expected: -2},
		{name: "garbage uses default", value: "soon", def: 30, expected: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "BLIGHT_TEST_INT"
			t.Setenv(key, tt.value)
			if got := ParseIntEnv(key, tt.def); got != tt.expected {
				t.Errorf("ParseIntEnv(%q)=%d, expected %d", tt.value, got, tt.expected)
			}
		})
	}
}
