package validator

import (
	"testing"
)

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"alice", true},
		{"examiner.01", true},
		{"a-b_c", true},
		{"ab", false},
		{"", false},
		{"has space", false},
		{"way@too@odd", false},
	}

	for _, tt := range tests {
		err := ValidateAccountName(tt.name)
		isValid := err == nil

		if isValid != tt.expected {
			t.Errorf("ValidateAccountName(%q) = %v, expected %v", tt.name, isValid, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		expected bool
	}{
		{"password123", true},
		{"12345678", true},
		{"short", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		isValid := err == nil

		if isValid != tt.expected {
			t.Errorf("ValidatePassword(%q) = %v, expected %v", tt.password, isValid, tt.expected)
		}
	}
}

func TestValidateCategory(t *testing.T) {
	tests := []struct {
		category uint64
		expected bool
	}{
		{1, true},
		{10, true},
		{5, true},
		{0, false},
		{11, false},
	}

	for _, tt := range tests {
		err := ValidateCategory(tt.category)
		isValid := err == nil

		if isValid != tt.expected {
			t.Errorf("ValidateCategory(%d) = %v, expected %v", tt.category, isValid, tt.expected)
		}
	}
}

func TestValidateDigest(t *testing.T) {
	if err := ValidateDigest("title", 0); err == nil {
		t.Error("Zero digest should be rejected")
	}
	if err := ValidateDigest("title", 123); err != nil {
		t.Errorf("Non-zero digest rejected: %v", err)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		field    string
		value    string
		expected bool
	}{
		{"name", "John", true},
		{"name", "", false},
		{"name", "   ", false},
	}

	for _, tt := range tests {
		err := ValidateRequired(tt.field, tt.value)
		isValid := err == nil

		if isValid != tt.expected {
			t.Errorf("ValidateRequired(%q, %q) = %v, expected %v", tt.field, tt.value, isValid, tt.expected)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  test  ", "test"},
		{"test\x00string", "teststring"},
		{"normal", "normal"},
	}

	for _, tt := range tests {
		result := SanitizeString(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeString(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestSanitizeAccountName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "alice"},
		{"  EXAMINER.01  ", "examiner.01"},
	}

	for _, tt := range tests {
		result := SanitizeAccountName(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeAccountName(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}
