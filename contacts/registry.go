package contacts

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry resolves contact and group JIDs to profiles. Lookups are total:
// a miss returns the configured defaults, never an error.
type Registry struct {
	mu              sync.RWMutex
	contacts        map[string]Contact
	groups          map[string]Group
	contactDefaults ContactDefaults
	groupDefaults   GroupDefaults
	logger          *slog.Logger
}

type contactEntry struct {
	Name             string `yaml:"name"`
	Role             string `yaml:"role"`
	Tone             string `yaml:"tone"`
	AllowProactive   bool   `yaml:"allow_proactive"`
	CooldownOverride *int   `yaml:"cooldown_override"`
}

type groupEntry struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	ReplyPolicy string `yaml:"reply_policy"`
}

type contactsFile struct {
	Contacts map[string]contactEntry `yaml:"contacts"`
	Defaults struct {
		Role           string `yaml:"role"`
		Tone           string `yaml:"tone"`
		AllowProactive bool   `yaml:"allow_proactive"`
	} `yaml:"defaults"`
}

type groupsFile struct {
	Groups   map[string]groupEntry `yaml:"groups"`
	Defaults struct {
		Category    string `yaml:"category"`
		ReplyPolicy string `yaml:"reply_policy"`
	} `yaml:"defaults"`
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		contacts:        map[string]Contact{},
		groups:          map[string]Group{},
		contactDefaults: ContactDefaults{Role: RoleUnknown, Tone: ToneNeutral},
		groupDefaults:   GroupDefaults{Category: CategoryUnknown, ReplyPolicy: ReplySelective},
		logger:          logger,
	}
}

// LoadContactsFile loads contact profiles from a YAML file. Invalid entries
// are skipped with a warning; a missing file leaves the registry empty.
func (r *Registry) LoadContactsFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read contacts file %s: %w", path, err)
	}

	var file contactsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse contacts file %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if role := normalizeRole(file.Defaults.Role); role != "" {
		r.contactDefaults.Role = role
	}
	if tone := normalizeTone(file.Defaults.Tone); tone != "" {
		r.contactDefaults.Tone = tone
	}
	r.contactDefaults.AllowProactive = file.Defaults.AllowProactive

	for jid, entry := range file.Contacts {
		jid = strings.TrimSpace(jid)
		if jid == "" {
			r.logger.Warn("contacts_entry_skipped", "reason", "empty jid")
			continue
		}
		contact, err := contactFromEntry(jid, entry)
		if err != nil {
			r.logger.Warn("contacts_entry_skipped", "jid", jid, "error", err.Error())
			continue
		}
		r.contacts[jid] = contact
	}
	r.logger.Info("contacts_loaded", "count", len(r.contacts), "path", path)
	return nil
}

// LoadGroupsFile loads group configurations from a YAML file; same tolerance
// rules as LoadContactsFile.
func (r *Registry) LoadGroupsFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read groups file %s: %w", path, err)
	}

	var file groupsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse groups file %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cat := normalizeCategory(file.Defaults.Category); cat != "" {
		r.groupDefaults.Category = cat
	}
	if pol := normalizeReplyPolicy(file.Defaults.ReplyPolicy); pol != "" {
		r.groupDefaults.ReplyPolicy = pol
	}

	for jid, entry := range file.Groups {
		jid = strings.TrimSpace(jid)
		if jid == "" {
			r.logger.Warn("groups_entry_skipped", "reason", "empty jid")
			continue
		}
		group, err := groupFromEntry(jid, entry)
		if err != nil {
			r.logger.Warn("groups_entry_skipped", "jid", jid, "error", err.Error())
			continue
		}
		r.groups[jid] = group
	}
	r.logger.Info("groups_loaded", "count", len(r.groups), "path", path)
	return nil
}

// ResolveContact returns the profile for a JID, or a default profile when
// the JID is not configured.
func (r *Registry) ResolveContact(jid string) Contact {
	jid = strings.TrimSpace(jid)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if contact, ok := r.contacts[jid]; ok {
		return contact
	}
	return Contact{
		JID:            jid,
		Name:           "Unknown",
		Role:           r.contactDefaults.Role,
		Tone:           r.contactDefaults.Tone,
		AllowProactive: r.contactDefaults.AllowProactive,
	}
}

// ResolveGroup returns the configuration for a group JID, or the defaults
// when the group is not configured.
func (r *Registry) ResolveGroup(jid string) Group {
	jid = strings.TrimSpace(jid)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if group, ok := r.groups[jid]; ok {
		return group
	}
	return Group{
		JID:         jid,
		Name:        "Unknown Group",
		Category:    r.groupDefaults.Category,
		ReplyPolicy: r.groupDefaults.ReplyPolicy,
	}
}

func (r *Registry) IsKnownContact(jid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.contacts[strings.TrimSpace(jid)]
	return ok
}

func (r *Registry) Contacts() []Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Groups() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

func contactFromEntry(jid string, entry contactEntry) (Contact, error) {
	role := normalizeRole(entry.Role)
	if entry.Role != "" && role == "" {
		return Contact{}, fmt.Errorf("unknown role %q", entry.Role)
	}
	if role == "" {
		role = RoleUnknown
	}
	tone := normalizeTone(entry.Tone)
	if entry.Tone != "" && tone == "" {
		return Contact{}, fmt.Errorf("unknown tone %q", entry.Tone)
	}
	if tone == "" {
		tone = DefaultToneForRole(role)
	}
	if entry.CooldownOverride != nil && *entry.CooldownOverride < 0 {
		return Contact{}, fmt.Errorf("cooldown_override must not be negative")
	}
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		name = "Unknown"
	}
	return Contact{
		JID:              jid,
		Name:             name,
		Role:             role,
		Tone:             tone,
		AllowProactive:   entry.AllowProactive,
		CooldownOverride: entry.CooldownOverride,
	}, nil
}

func groupFromEntry(jid string, entry groupEntry) (Group, error) {
	category := normalizeCategory(entry.Category)
	if entry.Category != "" && category == "" {
		return Group{}, fmt.Errorf("unknown category %q", entry.Category)
	}
	if category == "" {
		category = CategoryUnknown
	}
	policy := normalizeReplyPolicy(entry.ReplyPolicy)
	if entry.ReplyPolicy != "" && policy == "" {
		return Group{}, fmt.Errorf("unknown reply_policy %q", entry.ReplyPolicy)
	}
	if policy == "" {
		policy = ReplySelective
	}
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		name = "Unknown Group"
	}
	return Group{JID: jid, Name: name, Category: category, ReplyPolicy: policy}, nil
}

func normalizeRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePartner, RoleFamily, RoleFriend, RoleColleague, RoleUnknown:
		return Role(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ""
	}
}

func normalizeTone(s string) Tone {
	switch Tone(strings.ToLower(strings.TrimSpace(s))) {
	case ToneAffectionate, ToneLoving, ToneFriendly, ToneCasual, ToneSarcastic, ToneNeutral:
		return Tone(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ""
	}
}

func normalizeCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryFamily, CategoryFriends, CategoryWork, CategoryCommunity, CategoryUnknown:
		return Category(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ""
	}
}

func normalizeReplyPolicy(s string) ReplyPolicy {
	switch ReplyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case ReplyAlways, ReplySelective, ReplyNever:
		return ReplyPolicy(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ""
	}
}
