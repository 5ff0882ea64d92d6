// Package agent is the decision pipeline: it turns one inbound text message
// into exactly one verdict, either a dispatched reply or a suppression with
// a machine-readable reason. It owns the policy, safety, tone, and memory
// collaboration; the supervisor owns the transport.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/metanoia-oss/wingman/contacts"
	"github.com/metanoia-oss/wingman/internal/ipc"
	"github.com/metanoia-oss/wingman/internal/supervisor"
	"github.com/metanoia-oss/wingman/llm"
	"github.com/metanoia-oss/wingman/memory"
	"github.com/metanoia-oss/wingman/policy"
	"github.com/metanoia-oss/wingman/safety"
)

const (
	defaultContextWindow = 30
	defaultMaxTokens     = 300
	defaultTemperature   = 0.8
)

// Registry resolves chat participants to profiles. Both lookups are total;
// unknown identifiers yield defaults, never errors.
type Registry interface {
	ResolveContact(jid string) contacts.Contact
	ResolveGroup(jid string) contacts.Group
}

// Memory is the conversation history collaborator.
type Memory interface {
	AppendTurn(chatID string, turn memory.Turn) error
	ContextWindow(chatID string, maxTurns int) ([]memory.Turn, error)
	LastTurnIsSelf(chatID string) (bool, error)
}

// Sender dispatches outbound replies. SendMessage returns the correlation
// identifier of the queued command; SelfJID is the authenticated account,
// empty before the first connect.
type Sender interface {
	SendMessage(jid, text string) (string, error)
	SelfJID() string
}

type Options struct {
	Registry Registry
	Policies policy.Set
	Gate     *safety.Gate
	Memory   Memory
	Model    llm.Client
	Sender   Sender
	Logger   *slog.Logger

	BotName       string
	ExtraTriggers []string

	// ProcessSelf lets the pipeline evaluate self-authored messages, off by
	// default.
	ProcessSelf bool

	ContextWindow int
	ModelName     string
	MaxTokens     int
	Temperature   float64

	Now func() time.Time
}

// Processor runs the pipeline. Messages are processed one at a time per
// Process call; callers serialize per chat.
type Processor struct {
	opts     Options
	log      *slog.Logger
	prompts  *PromptBuilder
	mentions *mentionDetector
}

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Registry == nil || opts.Gate == nil || opts.Memory == nil || opts.Model == nil || opts.Sender == nil {
		return nil, fmt.Errorf("agent: registry, gate, memory, model, and sender are all required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaultContextWindow
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}

	prompts := NewPromptBuilder(opts.BotName)
	return &Processor{
		opts:     opts,
		log:      opts.Logger,
		prompts:  prompts,
		mentions: newMentionDetector(prompts.BotName(), opts.ExtraTriggers),
	}, nil
}

// Process evaluates one inbound message. The second return value is false
// when the message was skipped without a verdict (non-text or self-authored);
// otherwise exactly one verdict is returned. A failure on one message never
// blocks the next.
func (p *Processor) Process(ctx context.Context, msg ipc.MessagePayload) (Verdict, bool) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Verdict{}, false
	}

	log := p.log.With("chat_id", msg.ChatID, "sender_id", msg.SenderID)

	if err := p.opts.Memory.AppendTurn(msg.ChatID, memory.Turn{
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		Timestamp:  msg.Time(),
		IsSelf:     msg.IsSelf,
	}); err != nil {
		log.Warn("turn_append_failed", "error", err)
	}

	if msg.IsSelf && !p.opts.ProcessSelf {
		log.Debug("self_message_skipped")
		return Verdict{}, false
	}

	contact := p.opts.Registry.ResolveContact(msg.SenderID)

	var group contacts.Group
	if msg.IsGroup {
		group = p.opts.Registry.ResolveGroup(msg.ChatID)
		if group.ReplyPolicy == contacts.ReplyNever {
			return p.suppress(log, SuppressGroupNever), true
		}
	}

	isReplyToBot := p.isReplyToBot(msg)
	isMentioned := p.mentions.isMentioned(text)

	decision := policy.Decide(policy.Context{
		IsDM:          !msg.IsGroup,
		IsGroup:       msg.IsGroup,
		Role:          contact.Role,
		GroupCategory: group.Category,
		IsReplyToBot:  isReplyToBot,
		IsMentioned:   isMentioned,
	}, p.opts.Policies)

	switch decision.Action {
	case policy.ActionNever:
		return p.suppress(log, SuppressPolicyNever, "rule", decision.RuleName), true
	case policy.ActionSelective:
		if !isMentioned && !isReplyToBot {
			return p.suppress(log, SuppressPolicySelectiveUnmet, "rule", decision.RuleName), true
		}
	}

	// Never answer a chat whose latest stored turn is our own. Inbound
	// messages land in memory above, so this only fires for self-authored
	// traffic (when process_self is on) and duplicate deliveries, which is
	// exactly the reply loop it guards against.
	lastWasSelf, err := p.opts.Memory.LastTurnIsSelf(msg.ChatID)
	if err != nil {
		log.Warn("memory_tail_read_failed", "error", err)
		lastWasSelf = false
	}
	if lastWasSelf {
		return p.suppress(log, SuppressDoubleReply), true
	}

	now := p.opts.Now()
	gate := p.opts.Gate.Evaluate(msg.ChatID, now, cooldownOverride(contact))
	if !gate.Allowed {
		return p.suppress(log, SuppressReason(gate.Reason)), true
	}

	tone := contact.Tone
	if tone == "" {
		tone = contacts.DefaultToneForRole(contact.Role)
	}

	reply, err := p.generate(ctx, msg, contact, tone)
	if err != nil {
		log.Warn("model_call_failed", "error", err)
		return p.suppress(log, SuppressModelUnavailable), true
	}

	id, err := p.opts.Sender.SendMessage(msg.ChatID, reply)
	if err != nil {
		if !errors.Is(err, supervisor.ErrNotConnected) {
			log.Error("send_dispatch_failed", "error", err)
		}
		return p.suppress(log, SuppressNotConnected), true
	}

	// Safety state and our own turn are recorded only once the send command
	// was actually accepted.
	p.opts.Gate.RecordSend(msg.ChatID, now)
	if err := p.opts.Memory.AppendTurn(msg.ChatID, memory.Turn{
		SenderID:   p.opts.Sender.SelfJID(),
		SenderName: p.prompts.BotName(),
		Text:       reply,
		Timestamp:  p.opts.Now(),
		IsSelf:     true,
	}); err != nil {
		log.Warn("self_turn_append_failed", "error", err)
	}

	log.Info("reply_sent", "message_id", id, "tone", string(tone), "rule", decision.RuleName)
	return Verdict{
		Respond:   true,
		RuleName:  decision.RuleName,
		Tone:      tone,
		Text:      reply,
		MessageID: id,
	}, true
}

func (p *Processor) generate(ctx context.Context, msg ipc.MessagePayload, contact contacts.Contact, tone contacts.Tone) (string, error) {
	window, err := p.opts.Memory.ContextWindow(msg.ChatID, p.opts.ContextWindow)
	if err != nil {
		p.log.Warn("context_window_read_failed", "chat_id", msg.ChatID, "error", err)
		window = nil
	}

	messages := make([]llm.Message, 0, len(window)+1)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: p.prompts.Build(tone, contact.Name),
	})
	for _, turn := range window {
		if turn.IsSelf {
			messages = append(messages, llm.Message{Role: "assistant", Content: turn.Text})
			continue
		}
		content := turn.Text
		if msg.IsGroup && turn.SenderName != "" {
			content = turn.SenderName + ": " + content
		}
		messages = append(messages, llm.Message{Role: "user", Content: content})
	}

	res, err := p.opts.Model.Chat(ctx, llm.Request{
		Model:       p.opts.ModelName,
		Messages:    messages,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(res.Text)
	if reply == "" {
		return "", &llm.ModelError{Kind: "malformed", Err: fmt.Errorf("empty completion")}
	}
	return reply, nil
}

// isReplyToBot reports whether the quoted message, if any, was authored by
// the connected account. The bot name in the quoted sender is accepted as a
// fallback for transports that rewrite identifiers.
func (p *Processor) isReplyToBot(msg ipc.MessagePayload) bool {
	if msg.Quoted == nil {
		return false
	}
	if selfJID := p.opts.Sender.SelfJID(); selfJID != "" && msg.Quoted.SenderID == selfJID {
		return true
	}
	return strings.Contains(
		strings.ToLower(msg.Quoted.SenderID),
		strings.ToLower(p.prompts.BotName()),
	)
}

func (p *Processor) suppress(log *slog.Logger, reason SuppressReason, args ...any) Verdict {
	fields := append([]any{"reason", string(reason)}, args...)
	log.Info("verdict_suppressed", fields...)
	return suppressed(reason)
}

func cooldownOverride(c contacts.Contact) *time.Duration {
	if c.CooldownOverride == nil {
		return nil
	}
	d := time.Duration(*c.CooldownOverride) * time.Second
	return &d
}
