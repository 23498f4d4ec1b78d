package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/CharadesAI/charadesai-sub000/internal/i18n"
	"github.com/CharadesAI/charadesai-sub000/internal/middleware"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/CharadesAI/charadesai-sub000/internal/session"
	"github.com/sirupsen/logrus"
)

// Submission rejections. Nothing is appended to the conversation when one
// of these is returned.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a submission is already in flight")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Generator resolves a message history into an assistant reply
type Generator interface {
	Generate(ctx context.Context, messages []models.Message) (string, error)
}

// Conversation owns an append-only message sequence and a single in-flight
// submission slot. While a submission is pending or its job is being
// polled, further sends are rejected with ErrBusy, so at most one job is
// ever outstanding per conversation.
//
// Every accepted submission appends exactly one user message and, once it
// reaches a terminal outcome, exactly one assistant message: the reply on
// success, the localized generic failure string otherwise.
type Conversation struct {
	mu       sync.Mutex
	messages []models.Message
	busy     bool

	generator Generator
	store     session.Store
	limiter   middleware.RateLimiter
	validator *middleware.InputValidator
	metrics   *middleware.Metrics
	localizer *i18n.Localizer
	logger    *logrus.Logger

	lang     string
	preamble string
	user     string
}

// Options carries the collaborators a conversation needs
type Options struct {
	Generator Generator
	Store     session.Store
	Limiter   middleware.RateLimiter
	Metrics   *middleware.Metrics
	Localizer *i18n.Localizer
	Logger    *logrus.Logger

	// Language for user-facing strings
	Language string
	// Preamble is prepended to the first message ever sent from this
	// profile, recorded via a persisted store flag.
	Preamble string
	// User keys the rate limiter; empty for anonymous.
	User string
}

// NewConversation creates an empty conversation
func NewConversation(opts Options) *Conversation {
	return &Conversation{
		generator: opts.Generator,
		store:     opts.Store,
		limiter:   opts.Limiter,
		validator: middleware.NewInputValidator(opts.Logger),
		metrics:   opts.Metrics,
		localizer: opts.Localizer,
		logger:    opts.Logger,
		lang:      opts.Language,
		preamble:  opts.Preamble,
		user:      opts.User,
	}
}

// Send submits text and returns the assistant message that was appended.
// A terminal failure is a normal outcome: the generic failure message is
// appended and returned with a nil error. An error return means the
// submission was rejected and the conversation is unchanged.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if err := c.validator.Validate(text); err != nil {
		return "", err
	}
	if c.limiter != nil && !c.limiter.Allow(c.user) {
		c.metrics.RecordRateLimitExceeded(c.user)
		return "", ErrRateLimited
	}

	history, err := c.begin(ctx, text)
	if err != nil {
		return "", err
	}

	result, genErr := c.generator.Generate(ctx, history)

	return c.finish(result, genErr), nil
}

// begin claims the in-flight slot, appends the user message and returns
// the history to submit.
func (c *Conversation) begin(ctx context.Context, text string) ([]models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return nil, ErrBusy
	}
	c.busy = true

	c.messages = append(c.messages, models.Message{
		Role:    models.RoleUser,
		Content: text,
	})
	c.metrics.RecordChatMessage(models.RoleUser)

	history := make([]models.Message, len(c.messages))
	copy(history, c.messages)

	// On the very first message from this profile, prepend the product
	// context to the outgoing content. The flag write is best-effort.
	if c.preamble != "" {
		sent, err := c.store.Flag(ctx, session.FlagChatContextSent)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to read context flag")
		}
		if sent == "" {
			last := len(history) - 1
			history[last].Content = c.preamble + "\n\n" + history[last].Content
			if err := c.store.SetFlag(ctx, session.FlagChatContextSent, "true"); err != nil {
				c.logger.WithError(err).Warn("Failed to persist context flag")
			}
		}
	}

	return history, nil
}

// finish releases the in-flight slot and appends the single assistant
// message for this submission.
func (c *Conversation) finish(result string, genErr error) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busy = false

	reply := result
	if genErr != nil {
		c.logger.WithError(genErr).Warn("Inference failed")
		reply = c.localizer.Get(c.lang, i18n.MsgChatFailed, nil)
	}

	c.messages = append(c.messages, models.Message{
		Role:    models.RoleAssistant,
		Content: reply,
	})
	c.metrics.RecordChatMessage(models.RoleAssistant)

	return reply
}

// Messages returns a snapshot of the conversation
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Busy reports whether a submission is in flight
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Reset drops the conversation. Message history only lives for the
// session, as in the original widget.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
