package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/i18n"
	"github.com/CharadesAI/charadesai-sub000/internal/middleware"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/CharadesAI/charadesai-sub000/internal/session"
	"github.com/sirupsen/logrus"
)

const failureMessage = "Sorry, I encountered an error. Please try again."

type stubGenerator struct {
	reply   string
	err     error
	got     [][]models.Message
	blockCh chan struct{}
}

func (g *stubGenerator) Generate(ctx context.Context, messages []models.Message) (string, error) {
	history := make([]models.Message, len(messages))
	copy(history, messages)
	g.got = append(g.got, history)
	if g.blockCh != nil {
		<-g.blockCh
	}
	return g.reply, g.err
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }
func (denyLimiter) Reset(string)      {}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testLocalizer(t *testing.T) *i18n.Localizer {
	t.Helper()
	dir := t.TempDir()
	messages := `{"chat_failed": "` + failureMessage + `"}`
	if err := os.WriteFile(filepath.Join(dir, "en.json"), []byte(messages), 0600); err != nil {
		t.Fatalf("write language file: %v", err)
	}
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en"},
		Directory:       dir,
	})
	if err != nil {
		t.Fatalf("NewLocalizer error: %v", err)
	}
	return localizer
}

func testStore(t *testing.T) session.Store {
	t.Helper()
	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return store
}

func newTestConversation(t *testing.T, generator Generator, opts func(*Options)) *Conversation {
	t.Helper()
	o := Options{
		Generator: generator,
		Store:     testStore(t),
		Metrics:   middleware.NewMetrics(),
		Localizer: testLocalizer(t),
		Logger:    testLogger(),
		Language:  "en",
	}
	if opts != nil {
		opts(&o)
	}
	return NewConversation(o)
}

func TestSendAppendsUserAndAssistantOnce(t *testing.T) {
	generator := &stubGenerator{reply: "Hi!"}
	conversation := newTestConversation(t, generator, nil)

	reply, err := conversation.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if reply != "Hi!" {
		t.Fatalf("reply = %q, want Hi!", reply)
	}

	messages := conversation.Messages()
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[0].Content != "Hello" {
		t.Fatalf("messages[0] = %+v", messages[0])
	}
	if messages[1].Role != models.RoleAssistant || messages[1].Content != "Hi!" {
		t.Fatalf("messages[1] = %+v", messages[1])
	}
}

func TestSendFailureAppendsGenericMessage(t *testing.T) {
	generator := &stubGenerator{err: errors.New("network down")}
	conversation := newTestConversation(t, generator, nil)

	reply, err := conversation.Send(context.Background(), "X")
	if err != nil {
		t.Fatalf("Send error: %v (terminal failures are a normal outcome)", err)
	}
	if reply != failureMessage {
		t.Fatalf("reply = %q, want the generic failure message", reply)
	}

	messages := conversation.Messages()
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2 (exactly one assistant append)", len(messages))
	}
	if messages[1].Content != failureMessage {
		t.Fatalf("messages[1] = %+v", messages[1])
	}
	if conversation.Busy() {
		t.Fatal("conversation still busy after a terminal outcome")
	}
}

func TestSendRejectsEmptyInput(t *testing.T) {
	conversation := newTestConversation(t, &stubGenerator{reply: "x"}, nil)

	if _, err := conversation.Send(context.Background(), "   \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("error = %v, want ErrEmptyMessage", err)
	}
	if n := len(conversation.Messages()); n != 0 {
		t.Fatalf("message count = %d, want 0 after rejection", n)
	}
}

func TestSendRejectsOversizedInput(t *testing.T) {
	conversation := newTestConversation(t, &stubGenerator{reply: "x"}, nil)

	if _, err := conversation.Send(context.Background(), strings.Repeat("a", 5000)); err == nil {
		t.Fatal("expected oversized input to be rejected")
	}
	if n := len(conversation.Messages()); n != 0 {
		t.Fatalf("message count = %d, want 0 after rejection", n)
	}
}

func TestSendRejectsWhileInFlight(t *testing.T) {
	generator := &stubGenerator{reply: "done", blockCh: make(chan struct{})}
	conversation := newTestConversation(t, generator, nil)

	firstDone := make(chan string, 1)
	go func() {
		reply, _ := conversation.Send(context.Background(), "first")
		firstDone <- reply
	}()

	// Wait for the first submission to claim the slot
	deadline := time.Now().Add(time.Second)
	for !conversation.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first submission never became busy")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := conversation.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("error = %v, want ErrBusy", err)
	}

	close(generator.blockCh)
	if reply := <-firstDone; reply != "done" {
		t.Fatalf("first reply = %q, want done", reply)
	}

	// Only the first submission's messages exist
	messages := conversation.Messages()
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(messages))
	}
	if conversation.Busy() {
		t.Fatal("slot not released after terminal outcome")
	}

	// The slot is reusable after release
	if _, err := conversation.Send(context.Background(), "third"); err != nil {
		t.Fatalf("Send after release error: %v", err)
	}
}

func TestSendRateLimited(t *testing.T) {
	conversation := newTestConversation(t, &stubGenerator{reply: "x"}, func(o *Options) {
		o.Limiter = denyLimiter{}
	})

	if _, err := conversation.Send(context.Background(), "Hello"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if n := len(conversation.Messages()); n != 0 {
		t.Fatalf("message count = %d, want 0", n)
	}
}

func TestContextPreambleSentExactlyOncePerProfile(t *testing.T) {
	store := testStore(t)
	generator := &stubGenerator{reply: "ok"}
	conversation := newTestConversation(t, generator, func(o *Options) {
		o.Store = store
		o.Preamble = "Product context."
	})

	ctx := context.Background()
	if _, err := conversation.Send(ctx, "Hello"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if _, err := conversation.Send(ctx, "Again"); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	first := generator.got[0]
	if got := first[len(first)-1].Content; got != "Product context.\n\nHello" {
		t.Fatalf("first outgoing content = %q, want preamble prepended", got)
	}
	second := generator.got[1]
	if got := second[len(second)-1].Content; got != "Again" {
		t.Fatalf("second outgoing content = %q, want no preamble", got)
	}

	// The visible history never includes the preamble
	if msgs := conversation.Messages(); msgs[0].Content != "Hello" {
		t.Fatalf("visible message = %q, want Hello", msgs[0].Content)
	}

	// A fresh conversation over the same store still skips the preamble
	fresh := newTestConversation(t, generator, func(o *Options) {
		o.Store = store
		o.Preamble = "Product context."
	})
	if _, err := fresh.Send(ctx, "New session"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	third := generator.got[2]
	if got := third[len(third)-1].Content; got != "New session" {
		t.Fatalf("new session content = %q, want no preamble", got)
	}
}

func TestReset(t *testing.T) {
	conversation := newTestConversation(t, &stubGenerator{reply: "x"}, nil)
	if _, err := conversation.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	conversation.Reset()
	if n := len(conversation.Messages()); n != 0 {
		t.Fatalf("message count after reset = %d, want 0", n)
	}
}
