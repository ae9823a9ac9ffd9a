package catalog

import "testing"

func TestSecureURLUpgradesPlainHTTP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain http", input: "http://example.com/a.webm", expected: "https://example.com/a.webm"},
		{name: "already https", input: "https://example.com/a.webm", expected: "https://example.com/a.webm"},
		{name: "empty", input: "", expected: ""},
		{name: "relative path", input: "/images/a.jpg", expected: "/images/a.jpg"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			if got := SecureURL(testCase.input); got != testCase.expected {
				t.Fatalf("SecureURL(%q) = %q, want %q", testCase.input, got, testCase.expected)
			}
		})
	}
}
