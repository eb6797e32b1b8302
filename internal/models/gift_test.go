package models

import (
	"strings"
	"testing"
)

func TestIsAllowedSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   bool
	}{
		{"TSLA", true},
		{"AAPL", true},
		{"NVDA", true},
		{"tsla", true},
		{"MSFT", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAllowedSymbol(tt.symbol); got != tt.want {
			t.Errorf("IsAllowedSymbol(%q) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestPlaceholderRecipientEmail(t *testing.T) {
	got := PlaceholderRecipientEmail("+1 (202) 555-0101")
	if got != "12025550101@gift.invalid" {
		t.Errorf("expected digits-only local part, got %q", got)
	}

	// Formatting variants of the same number map to the same address.
	if PlaceholderRecipientEmail("+12025550101") != got {
		t.Error("expected formatting-insensitive placeholder")
	}

	// Distinct numbers map to distinct addresses.
	if PlaceholderRecipientEmail("+12025550102") == got {
		t.Error("expected distinct numbers to produce distinct placeholders")
	}

	if !strings.HasSuffix(got, "@gift.invalid") {
		t.Errorf("expected a non-routable .invalid address, got %q", got)
	}
}
