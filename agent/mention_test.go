package agent

import (
	"strings"
	"testing"

	"github.com/metanoia-oss/wingman/contacts"
)

func TestMentionDetection(t *testing.T) {
	d := newMentionDetector("Maximus", []string{"max"})

	cases := []struct {
		text string
		want bool
	}{
		{"hey maximus, settle this", true},
		{"@Maximus what say you", true},
		{"MAXIMUS!", true},
		{"ask max about it", true},
		{"the maximum value is 3", false},
		{"", false},
		{"nothing relevant here", false},
	}
	for _, tc := range cases {
		if got := d.isMentioned(tc.text); got != tc.want {
			t.Errorf("isMentioned(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestPromptBuilderTones(t *testing.T) {
	b := NewPromptBuilder("Maximus")

	p := b.Build(contacts.ToneSarcastic, "Sam")
	if !strings.Contains(p, "Maximus") {
		t.Error("prompt lost the bot name")
	}
	if !strings.Contains(p, "witty banter") {
		t.Error("sarcastic tone addition missing")
	}
	if !strings.Contains(p, "chatting with Sam") {
		t.Error("contact personalization missing")
	}

	// Unknown tone falls back to neutral, no name suffix without a name.
	p = b.Build(contacts.Tone("??"), "")
	if !strings.Contains(p, "acquaintance") {
		t.Error("unknown tone did not fall back to neutral")
	}
	if strings.Contains(p, "chatting with") {
		t.Error("unexpected personalization")
	}
}
