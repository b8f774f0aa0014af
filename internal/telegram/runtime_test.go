package telegram

import (
	"testing"

	"github.com/essket/pixorbi-bot/convo"
)

func TestParseLifecycleCommand(t *testing.T) {
	cases := []struct {
		text     string
		wantKind convo.EventKind
		wantVal  string
		wantOK   bool
	}{
		{"/start", convo.EventBegin, "", true},
		{"/start@PixorbiBot", convo.EventBegin, "", true},
		{"  /reset  ", convo.EventReset, "", true},
		{"/character mira", convo.EventSetCharacter, "mira", true},
		{"/persona anna", convo.EventSetCharacter, "anna", true},
		{"/language en", convo.EventSetLanguage, "en", true},
		{"/lang@PixorbiBot ru", convo.EventSetLanguage, "ru", true},
		{"/language", convo.EventSetLanguage, "", true},
		{"/help", "", "", false},
		{"привет", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		ev, ok := parseLifecycleCommand(tc.text)
		if ok != tc.wantOK {
			t.Errorf("parseLifecycleCommand(%q) ok = %v, want %v", tc.text, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if ev.Kind != tc.wantKind || ev.Value != tc.wantVal {
			t.Errorf("parseLifecycleCommand(%q) = %+v, want kind=%q value=%q", tc.text, ev, tc.wantKind, tc.wantVal)
		}
	}
}

func TestIsCommand(t *testing.T) {
	if !isCommand("/help") || !isCommand("  /unknown thing") {
		t.Errorf("slash texts should be commands")
	}
	if isCommand("привет /start") {
		t.Errorf("plain text should not be a command")
	}
}

func TestNewRuntimeRequiresToken(t *testing.T) {
	if _, err := NewRuntime(nil, nil, Options{}); err == nil {
		t.Fatalf("expected error for missing token")
	}
}
