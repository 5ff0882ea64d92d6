package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/metanoia-oss/wingman/contacts"
)

func boolPtr(v bool) *bool { return &v }

func rolePtr(v contacts.Role) *contacts.Role { return &v }

func categoryPtr(v contacts.Category) *contacts.Category { return &v }

func TestFirstMatchWins(t *testing.T) {
	set := Set{
		Rules: []Rule{
			{
				Name:       "fam",
				Conditions: Conditions{IsDM: boolPtr(true), Role: rolePtr(contacts.RoleFamily)},
				Action:     ActionAlways,
			},
			{
				Name:       "unk",
				Conditions: Conditions{IsDM: boolPtr(true), Role: rolePtr(contacts.RoleUnknown)},
				Action:     ActionNever,
			},
		},
		Fallback: ActionSelective,
	}

	cases := []struct {
		name     string
		ctx      Context
		want     Action
		wantRule string
	}{
		{
			name:     "family dm matches first rule",
			ctx:      Context{IsDM: true, Role: contacts.RoleFamily},
			want:     ActionAlways,
			wantRule: "fam",
		},
		{
			name:     "unknown dm matches second rule",
			ctx:      Context{IsDM: true, Role: contacts.RoleUnknown},
			want:     ActionNever,
			wantRule: "unk",
		},
		{
			name: "colleague dm falls through to fallback",
			ctx:  Context{IsDM: true, Role: contacts.RoleColleague},
			want: ActionSelective,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.ctx, set)
			if got.Action != tc.want {
				t.Fatalf("expected action %s, got %s", tc.want, got.Action)
			}
			if got.RuleName != tc.wantRule {
				t.Fatalf("expected rule %q, got %q", tc.wantRule, got.RuleName)
			}
		})
	}
}

func TestUndeclaredConditionsAreDontCare(t *testing.T) {
	set := Set{
		Rules: []Rule{
			{Name: "all-groups", Conditions: Conditions{IsGroup: boolPtr(true)}, Action: ActionSelective},
		},
		Fallback: ActionNever,
	}

	// Role, category, mention flags differ across these contexts; the rule
	// declares only is_group, so all of them match.
	for _, ctx := range []Context{
		{IsGroup: true, Role: contacts.RolePartner, GroupCategory: contacts.CategoryFamily},
		{IsGroup: true, Role: contacts.RoleUnknown, IsMentioned: true},
		{IsGroup: true, IsReplyToBot: true},
	} {
		if got := Decide(ctx, set); got.Action != ActionSelective {
			t.Fatalf("context %+v should match, got %s", ctx, got.Action)
		}
	}

	if got := Decide(Context{IsGroup: false}, set); got.Action != ActionNever {
		t.Fatalf("dm should fall through to fallback, got %s", got.Action)
	}
}

func TestGroupCategoryCondition(t *testing.T) {
	set := Set{
		Rules: []Rule{
			{
				Name:       "work-groups",
				Conditions: Conditions{IsGroup: boolPtr(true), GroupCategory: categoryPtr(contacts.CategoryWork)},
				Action:     ActionNever,
			},
		},
		Fallback: ActionSelective,
	}

	if got := Decide(Context{IsGroup: true, GroupCategory: contacts.CategoryWork}, set); got.Action != ActionNever {
		t.Fatalf("work group should match, got %s", got.Action)
	}
	if got := Decide(Context{IsGroup: true, GroupCategory: contacts.CategoryFriends}, set); got.Action != ActionSelective {
		t.Fatalf("friends group should not match, got %s", got.Action)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	set := Set{
		Rules: []Rule{
			{Name: "r1", Conditions: Conditions{IsDM: boolPtr(true)}, Action: ActionAlways},
		},
		Fallback: ActionSelective,
	}
	ctx := Context{IsDM: true, Role: contacts.RoleFriend}
	first := Decide(ctx, set)
	for i := 0; i < 100; i++ {
		if got := Decide(ctx, set); got != first {
			t.Fatalf("call %d diverged: %+v != %+v", i, got, first)
		}
	}
}

func TestEmptyFallbackDefaultsToSelective(t *testing.T) {
	if got := Decide(Context{}, Set{}); got.Action != ActionSelective {
		t.Fatalf("expected selective, got %s", got.Action)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	content := `
rules:
  - name: fam
    conditions:
      is_dm: true
      role: family
    action: always
  - name: strangers
    conditions:
      is_dm: true
      role: unknown
    action: never
fallback:
  action: selective
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(set.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(set.Rules))
	}
	if set.Fallback != ActionSelective {
		t.Fatalf("expected selective fallback, got %s", set.Fallback)
	}

	got := Decide(Context{IsDM: true, Role: contacts.RoleFamily}, set)
	if got.Action != ActionAlways || got.RuleName != "fam" {
		t.Fatalf("unexpected decision: %+v", got)
	}
}

func TestLoadFileRejectsDuplicatesAndBadActions(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name: "duplicate names",
			content: `
rules:
  - name: a
    action: always
  - name: a
    action: never
`,
		},
		{
			name: "invalid action",
			content: `
rules:
  - name: a
    action: sometimes
`,
		},
		{
			name: "invalid fallback",
			content: `
fallback:
  action: maybe
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policies.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadFile(path); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestLoadFileMissingIsEmptySet(t *testing.T) {
	set, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(set.Rules) != 0 || set.Fallback != ActionSelective {
		t.Fatalf("unexpected set: %+v", set)
	}
}
