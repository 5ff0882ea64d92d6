package contacts

type Role string

const (
	RolePartner   Role = "partner"
	RoleFamily    Role = "family"
	RoleFriend    Role = "friend"
	RoleColleague Role = "colleague"
	RoleUnknown   Role = "unknown"
)

type Tone string

const (
	ToneAffectionate Tone = "affectionate"
	ToneLoving       Tone = "loving"
	ToneFriendly     Tone = "friendly"
	ToneCasual       Tone = "casual"
	ToneSarcastic    Tone = "sarcastic"
	ToneNeutral      Tone = "neutral"
)

type Category string

const (
	CategoryFamily    Category = "family"
	CategoryFriends   Category = "friends"
	CategoryWork      Category = "work"
	CategoryCommunity Category = "community"
	CategoryUnknown   Category = "unknown"
)

type ReplyPolicy string

const (
	ReplyAlways    ReplyPolicy = "always"
	ReplySelective ReplyPolicy = "selective"
	ReplyNever     ReplyPolicy = "never"
)

// Contact is the resolved profile for a chat participant. Immutable per
// lookup; unknown JIDs resolve to the registry defaults.
type Contact struct {
	JID              string
	Name             string
	Role             Role
	Tone             Tone
	AllowProactive   bool
	CooldownOverride *int // seconds; nil means use the global default
}

// Group is the resolved configuration for a group chat.
type Group struct {
	JID         string
	Name        string
	Category    Category
	ReplyPolicy ReplyPolicy
}

type ContactDefaults struct {
	Role           Role
	Tone           Tone
	AllowProactive bool
}

type GroupDefaults struct {
	Category    Category
	ReplyPolicy ReplyPolicy
}

// DefaultToneForRole maps a role to its default tone, used when a contact
// entry configures a role but no explicit tone.
func DefaultToneForRole(role Role) Tone {
	switch role {
	case RolePartner:
		return ToneAffectionate
	case RoleFamily:
		return ToneFriendly
	case RoleFriend:
		return ToneCasual
	case RoleColleague:
		return ToneNeutral
	default:
		return ToneNeutral
	}
}
