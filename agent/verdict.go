package agent

import "github.com/metanoia-oss/wingman/contacts"

// SuppressReason is the machine-readable cause attached to every suppressed
// message. No suppression is silent; each one is logged with its reason.
type SuppressReason string

const (
	SuppressGroupNever           SuppressReason = "group-never"
	SuppressPolicyNever          SuppressReason = "policy-never"
	SuppressPolicySelectiveUnmet SuppressReason = "policy-selective-unmet"
	SuppressQuietHours           SuppressReason = "quiet-hours"
	SuppressRateLimited          SuppressReason = "rate-limited"
	SuppressCooldownActive       SuppressReason = "cooldown-active"
	SuppressModelUnavailable     SuppressReason = "model-unavailable"
	SuppressNotConnected         SuppressReason = "not-connected"
	SuppressDoubleReply          SuppressReason = "double-reply"
)

// Verdict is the single outcome of processing one text message: either a
// dispatched reply or a suppression with its reason.
type Verdict struct {
	Respond bool
	Reason  SuppressReason // set when suppressed

	// Set on a respond verdict.
	RuleName  string        // matched policy rule, empty for fallback
	Tone      contacts.Tone // resolved from contact or role default
	Text      string        // generated reply
	MessageID string        // correlation id of the outbound send command
}

func suppressed(reason SuppressReason) Verdict {
	return Verdict{Respond: false, Reason: reason}
}
