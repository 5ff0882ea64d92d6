package contacts

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadContactsAndResolve(t *testing.T) {
	path := writeFile(t, "contacts.yaml", `
contacts:
  "1555000@s.whatsapp.net":
    name: Dana
    role: partner
    tone: affectionate
    allow_proactive: true
    cooldown_override: 30
  "1555001@s.whatsapp.net":
    name: Sam
    role: colleague
defaults:
  role: unknown
  tone: neutral
`)

	reg := NewRegistry(testLogger())
	if err := reg.LoadContactsFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	dana := reg.ResolveContact("1555000@s.whatsapp.net")
	if dana.Role != RolePartner || dana.Tone != ToneAffectionate {
		t.Fatalf("unexpected profile: %+v", dana)
	}
	if dana.CooldownOverride == nil || *dana.CooldownOverride != 30 {
		t.Fatalf("expected cooldown override 30, got %+v", dana.CooldownOverride)
	}

	// Tone defaults from role when omitted.
	sam := reg.ResolveContact("1555001@s.whatsapp.net")
	if sam.Tone != ToneNeutral {
		t.Fatalf("expected colleague default tone neutral, got %s", sam.Tone)
	}
}

func TestResolveContactMissReturnsDefaults(t *testing.T) {
	reg := NewRegistry(testLogger())
	got := reg.ResolveContact("nobody@s.whatsapp.net")
	if got.Role != RoleUnknown || got.Tone != ToneNeutral || got.AllowProactive {
		t.Fatalf("unexpected default profile: %+v", got)
	}
	if got.JID != "nobody@s.whatsapp.net" {
		t.Fatalf("default profile should carry the queried jid, got %q", got.JID)
	}
	if got.CooldownOverride != nil {
		t.Fatal("default profile must not carry a cooldown override")
	}
}

func TestLoadContactsSkipsInvalidEntries(t *testing.T) {
	path := writeFile(t, "contacts.yaml", `
contacts:
  "good@s.whatsapp.net":
    name: Good
    role: friend
  "bad@s.whatsapp.net":
    name: Bad
    role: archnemesis
`)
	reg := NewRegistry(testLogger())
	if err := reg.LoadContactsFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reg.IsKnownContact("good@s.whatsapp.net") {
		t.Fatal("valid entry should load")
	}
	if reg.IsKnownContact("bad@s.whatsapp.net") {
		t.Fatal("invalid entry should be skipped, not loaded")
	}
}

func TestLoadGroupsAndResolve(t *testing.T) {
	path := writeFile(t, "groups.yaml", `
groups:
  "123@g.us":
    name: Family Chat
    category: family
    reply_policy: always
  "456@g.us":
    name: Work
    category: work
    reply_policy: never
defaults:
  category: unknown
  reply_policy: selective
`)
	reg := NewRegistry(testLogger())
	if err := reg.LoadGroupsFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	fam := reg.ResolveGroup("123@g.us")
	if fam.Category != CategoryFamily || fam.ReplyPolicy != ReplyAlways {
		t.Fatalf("unexpected group: %+v", fam)
	}

	miss := reg.ResolveGroup("999@g.us")
	if miss.ReplyPolicy != ReplySelective || miss.Category != CategoryUnknown {
		t.Fatalf("unexpected default group: %+v", miss)
	}
}

func TestContactsAndGroupsSnapshot(t *testing.T) {
	contacts := writeFile(t, "contacts.yaml", `
contacts:
  "1555000@s.whatsapp.net":
    name: Dana
    role: partner
  "1555001@s.whatsapp.net":
    name: Sam
    role: colleague
`)
	groups := writeFile(t, "groups.yaml", `
groups:
  "123@g.us":
    name: Family Chat
    category: family
    reply_policy: always
`)
	reg := NewRegistry(testLogger())
	if err := reg.LoadContactsFile(contacts); err != nil {
		t.Fatalf("load contacts: %v", err)
	}
	if err := reg.LoadGroupsFile(groups); err != nil {
		t.Fatalf("load groups: %v", err)
	}

	cs := reg.Contacts()
	if len(cs) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(cs))
	}
	names := map[string]bool{}
	for _, c := range cs {
		names[c.Name] = true
	}
	if !names["Dana"] || !names["Sam"] {
		t.Fatalf("snapshot missing contacts: %v", names)
	}

	gs := reg.Groups()
	if len(gs) != 1 || gs[0].Name != "Family Chat" {
		t.Fatalf("unexpected group snapshot: %+v", gs)
	}
}

func TestLoadMissingFilesIsNotAnError(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.LoadContactsFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing contacts file should not error: %v", err)
	}
	if err := reg.LoadGroupsFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing groups file should not error: %v", err)
	}
}

func TestDefaultToneForRole(t *testing.T) {
	cases := []struct {
		role Role
		want Tone
	}{
		{RolePartner, ToneAffectionate},
		{RoleFamily, ToneFriendly},
		{RoleFriend, ToneCasual},
		{RoleColleague, ToneNeutral},
		{RoleUnknown, ToneNeutral},
	}
	for _, tc := range cases {
		if got := DefaultToneForRole(tc.role); got != tc.want {
			t.Errorf("role %s: expected %s, got %s", tc.role, tc.want, got)
		}
	}
}
