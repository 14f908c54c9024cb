package notify

import (
	"strings"
	"testing"
)

func TestThrottledLocales(t *testing.T) {
	tests := []struct {
		locale string
		want   string // substring unique to the expected language
	}{
		{"en", "too quickly"},
		{"en-US", "too quickly"},
		{"el", "γρήγορα"},
		{"el-GR", "γρήγορα"},
		{"de", "zu schnell"},
		{"de-AT", "zu schnell"},
		{"fr", "too quickly"}, // unsupported falls back to English
		{"", "too quickly"},
		{"not-a-locale!!", "too quickly"},
	}
	for _, tc := range tests {
		got := Throttled(tc.locale)
		if !strings.Contains(got, tc.want) {
			t.Errorf("Throttled(%q) = %q, want substring %q", tc.locale, got, tc.want)
		}
	}
}

func TestQuotaExceededLocales(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"en", "daily message limit"},
		{"el", "ημερήσιο όριο"},
		{"de", "Nachrichtenlimit"},
		{"pt-BR", "daily message limit"},
	}
	for _, tc := range tests {
		got := QuotaExceeded(tc.locale)
		if !strings.Contains(got, tc.want) {
			t.Errorf("QuotaExceeded(%q) = %q, want substring %q", tc.locale, got, tc.want)
		}
	}
}

func TestEveryNoticeNonEmpty(t *testing.T) {
	for _, tag := range supported {
		if throttled[tag] == "" {
			t.Errorf("throttled notice missing for %v", tag)
		}
		if quotaExceeded[tag] == "" {
			t.Errorf("quota notice missing for %v", tag)
		}
	}
}
