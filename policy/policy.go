// Package policy decides the response action for a message from an ordered
// rule list. Evaluation is pure: the same context and rule set always yield
// the same action.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/metanoia-oss/wingman/contacts"
)

type Action = contacts.ReplyPolicy

const (
	ActionAlways    = contacts.ReplyAlways
	ActionSelective = contacts.ReplySelective
	ActionNever     = contacts.ReplyNever
)

// Conditions are the declared predicates of a rule. A nil field is "don't
// care"; a set field must equal the corresponding context field.
type Conditions struct {
	IsDM          *bool              `yaml:"is_dm"`
	IsGroup       *bool              `yaml:"is_group"`
	Role          *contacts.Role     `yaml:"role"`
	GroupCategory *contacts.Category `yaml:"group_category"`
	IsReplyToBot  *bool              `yaml:"is_reply_to_bot"`
	IsMentioned   *bool              `yaml:"is_mentioned"`
}

type Rule struct {
	Name       string     `yaml:"name"`
	Conditions Conditions `yaml:"conditions"`
	Action     Action     `yaml:"action"`
}

// Set is an ordered rule list plus a fallback action. It is replaced as a
// whole value; the engine never mutates it.
type Set struct {
	Rules    []Rule
	Fallback Action
}

// Context carries the message facts rules match against, all resolved
// upstream from registry lookups and message metadata.
type Context struct {
	IsDM          bool
	IsGroup       bool
	Role          contacts.Role
	GroupCategory contacts.Category
	IsReplyToBot  bool
	IsMentioned   bool
}

type Decision struct {
	Action   Action
	RuleName string // empty when the fallback applied
}

// Decide walks the rules in order and returns the action of the first rule
// whose declared conditions all match; when none match, the fallback.
func Decide(ctx Context, set Set) Decision {
	for _, rule := range set.Rules {
		if matches(rule.Conditions, ctx) {
			return Decision{Action: rule.Action, RuleName: rule.Name}
		}
	}
	fallback := set.Fallback
	if fallback == "" {
		fallback = ActionSelective
	}
	return Decision{Action: fallback}
}

func matches(c Conditions, ctx Context) bool {
	if c.IsDM != nil && *c.IsDM != ctx.IsDM {
		return false
	}
	if c.IsGroup != nil && *c.IsGroup != ctx.IsGroup {
		return false
	}
	if c.Role != nil && *c.Role != ctx.Role {
		return false
	}
	if c.GroupCategory != nil && *c.GroupCategory != ctx.GroupCategory {
		return false
	}
	if c.IsReplyToBot != nil && *c.IsReplyToBot != ctx.IsReplyToBot {
		return false
	}
	if c.IsMentioned != nil && *c.IsMentioned != ctx.IsMentioned {
		return false
	}
	return true
}

type setFile struct {
	Rules    []Rule `yaml:"rules"`
	Fallback struct {
		Action string `yaml:"action"`
	} `yaml:"fallback"`
}

// LoadFile loads a rule set from YAML. Rule names must be unique; a rule with
// an invalid action is rejected (the whole file fails, because a partially
// applied policy is worse than the previous one staying in force).
func LoadFile(path string) (Set, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Set{Fallback: ActionSelective}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{Fallback: ActionSelective}, nil
		}
		return Set{}, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var file setFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Set{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	seen := map[string]bool{}
	for i, rule := range file.Rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return Set{}, fmt.Errorf("policy rule %d has no name", i)
		}
		if seen[name] {
			return Set{}, fmt.Errorf("duplicate policy rule name %q", name)
		}
		seen[name] = true
		switch rule.Action {
		case ActionAlways, ActionSelective, ActionNever:
		default:
			return Set{}, fmt.Errorf("policy rule %q has invalid action %q", name, rule.Action)
		}
		file.Rules[i].Name = name
	}

	fallback := Action(strings.ToLower(strings.TrimSpace(file.Fallback.Action)))
	switch fallback {
	case ActionAlways, ActionSelective, ActionNever:
	case "":
		fallback = ActionSelective
	default:
		return Set{}, fmt.Errorf("invalid fallback action %q", file.Fallback.Action)
	}

	return Set{Rules: file.Rules, Fallback: fallback}, nil
}
