package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"study-bot/internal/cache"
	"study-bot/internal/metrics"
	"study-bot/internal/nlu"
	"study-bot/internal/repo"
	"study-bot/internal/wa"
)

// Sender delivers outbound messages. *wa.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, to types.JID, text string) error
	SendDocument(ctx context.Context, to types.JID, data []byte, fileName, mimeType, caption string) error
}

// Composer produces free-form answers and intent classifications.
// *nlu.Client satisfies it.
type Composer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Classify(ctx context.Context, text string) (*nlu.Reply, error)
}

// Config tunes the conversation engine.
type Config struct {
	// SearchLimit caps how many materials one menu shows.
	SearchLimit int
	// HistoryLimit caps the download history reply.
	HistoryLimit int
}

func (c *Config) applyDefaults() {
	if c.SearchLimit <= 0 {
		c.SearchLimit = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
}

// Engine drives the storefront conversation over inbound chat messages.
type Engine struct {
	store    Store
	searcher *Searcher
	composer Composer
	sender   Sender
	sessions *SessionStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config
}

// New builds the engine. composer and redisCache may be nil; a nil
// composer turns free-form questions into a canned fallback.
func New(store Store, composer Composer, sender Sender, redisCache *cache.Redis, sessions *SessionStore, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store:    store,
		searcher: NewSearcher(store, redisCache, m, logger),
		composer: composer,
		sender:   sender,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With("component", "convo"),
		cfg:      cfg,
	}
}

// ProcessMessage implements wa.MessageProcessor.
func (e *Engine) ProcessMessage(ctx context.Context, evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	text := extractText(evt)
	if strings.TrimSpace(text) == "" {
		return
	}

	sender := evt.Info.Sender.ToNonAD()
	jidStr := sender.String()
	profile := repo.UserProfile{WAID: sender.User, WAJID: &jidStr}
	if evt.Info.PushName != "" {
		name := evt.Info.PushName
		profile.DisplayName = &name
	}
	user, err := e.store.UpsertUserByWA(ctx, profile)
	if err != nil {
		e.logger.Error("upsert user failed", "wa_id", sender.User, "error", err)
		e.observeError("user_upsert")
		return
	}

	e.auditMessage(ctx, user.ID, "in", text)
	// Replies quote the message that triggered them.
	e.handleText(wa.WithReply(ctx, evt), user, sender, text)
}

func extractText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if t := evt.Message.GetConversation(); t != "" {
		return t
	}
	return evt.Message.GetExtendedTextMessage().GetText()
}

// handleText routes one inbound text through the session machine or, with
// no session, through keyword and classifier dispatch.
func (e *Engine) handleText(ctx context.Context, user *repo.User, jid types.JID, text string) {
	text = strings.TrimSpace(text)
	lowered := strings.ToLower(text)

	if sess, ok := e.sessions.Get(user.WAID); ok {
		e.handleSession(ctx, user, jid, sess, text, lowered)
		return
	}

	switch {
	case lowered == "resume":
		e.reply(ctx, user, jid, nothingToResumeMessage)
	case isPurchaseIntent(lowered):
		e.startBrowse(ctx, user, jid)
	case isGreeting(lowered):
		name := ""
		if user.DisplayName != nil {
			name = *user.DisplayName
		}
		e.reply(ctx, user, jid, welcomeMessage(name))
	case lowered == "history" || lowered == "my downloads":
		e.sendHistory(ctx, user, jid)
	case isStudyQuestion(lowered):
		e.answerQuestion(ctx, user, jid, text)
	default:
		e.classifyAndReply(ctx, user, jid, text)
	}
}

var purchaseWords = []string{"/buy", "buy", "purchase", "browse", "catalog", "materials", "study materials", "shop"}

func isPurchaseIntent(lowered string) bool {
	for _, w := range purchaseWords {
		if lowered == w {
			return true
		}
	}
	return false
}

func isGreeting(lowered string) bool {
	switch lowered {
	case "/start", "start", "hi", "hello", "hey", "menu", "help":
		return true
	}
	return false
}

var questionWords = []string{"question", "questions", "practice", "quiz", "explain", "what is", "how do", "why does"}

func isStudyQuestion(lowered string) bool {
	for _, w := range questionWords {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// startBrowse opens a fresh session at category selection.
func (e *Engine) startBrowse(ctx context.Context, user *repo.User, jid types.JID) {
	e.sessions.Set(user.WAID, Session{State: StateCategorySelection})
	e.reply(ctx, user, jid, categoryMenu())
}

// startBrowseInCategory skips the menu when the classifier already named a
// valid category.
func (e *Engine) startBrowseInCategory(ctx context.Context, user *repo.User, jid types.JID, category string) {
	sess := Session{State: StateCategorySelection}
	e.sessions.Set(user.WAID, sess)
	e.enterCategory(ctx, user, jid, sess, category)
}

func (e *Engine) sendHistory(ctx context.Context, user *repo.User, jid types.JID) {
	entries, err := e.store.ListDownloads(ctx, user.ID, e.cfg.HistoryLimit)
	if err != nil {
		e.logger.Error("list downloads failed", "user", user.ID, "error", err)
		e.observeError("history")
		e.reply(ctx, user, jid, retryMessage)
		return
	}
	e.reply(ctx, user, jid, historyMessage(entries))
}

// answerQuestion forwards a study question to the composer. When it is
// unavailable the user gets pointed back at the catalog instead of an
// error.
func (e *Engine) answerQuestion(ctx context.Context, user *repo.User, jid types.JID, text string) {
	if e.composer == nil {
		e.reply(ctx, user, jid, tutorFallbackMessage)
		return
	}
	var b strings.Builder
	b.WriteString("You are a concise study tutor for exam candidates. Answer the question below in a short chat message, plain text only.\n")
	if history := e.recentHistory(ctx, user.ID); history != "" {
		b.WriteString("\nRecent conversation:\n")
		b.WriteString(history)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(text)
	answer, err := e.composer.Complete(ctx, b.String(), 512)
	if err != nil {
		if !errors.Is(err, nlu.ErrUnavailable) {
			e.logger.Warn("tutor completion failed", "error", err)
			e.observeError("nlu")
		}
		e.reply(ctx, user, jid, tutorFallbackMessage)
		return
	}
	e.reply(ctx, user, jid, answer)
}

// classifyAndReply handles free-form text with no matching keyword. The
// classifier decides whether to open the purchase flow, answer a question
// or just chat.
func (e *Engine) classifyAndReply(ctx context.Context, user *repo.User, jid types.JID, text string) {
	if e.composer == nil {
		e.reply(ctx, user, jid, welcomeMessage(""))
		return
	}
	rep, err := e.composer.Classify(ctx, text)
	if err != nil {
		if !errors.Is(err, nlu.ErrUnavailable) {
			e.logger.Warn("classification failed", "error", err)
			e.observeError("nlu")
		}
		e.reply(ctx, user, jid, welcomeMessage(""))
		return
	}
	switch rep.Kind {
	case nlu.KindDirective:
		if rep.Directive == nil {
			e.reply(ctx, user, jid, welcomeMessage(""))
			return
		}
		switch rep.Directive.Step {
		case nlu.StepBrowse:
			if rep.Directive.Category != "" && repo.ValidCategory(rep.Directive.Category) {
				e.startBrowseInCategory(ctx, user, jid, rep.Directive.Category)
			} else {
				e.startBrowse(ctx, user, jid)
			}
		case nlu.StepQuestion:
			e.answerQuestion(ctx, user, jid, text)
		default:
			e.reply(ctx, user, jid, welcomeMessage(""))
		}
	default:
		if rep.Text != "" {
			e.reply(ctx, user, jid, rep.Text)
		} else {
			e.reply(ctx, user, jid, welcomeMessage(""))
		}
	}
}

// reply sends a text message and records it in the message audit log.
func (e *Engine) reply(ctx context.Context, user *repo.User, jid types.JID, text string) {
	if err := e.sender.SendText(ctx, jid, text); err != nil {
		e.logger.Error("send text failed", "wa_id", user.WAID, "error", err)
		e.observeError("send")
		return
	}
	e.auditMessage(ctx, user.ID, "out", text)
}

// recentHistory renders the last few audited messages for prompt context.
// Failures just mean less context, never a failed answer.
func (e *Engine) recentHistory(ctx context.Context, userID string) string {
	records, err := e.store.ListRecentMessages(ctx, userID, 6)
	if err != nil {
		e.logger.Warn("list recent messages failed", "user", userID, "error", err)
		return ""
	}
	var b strings.Builder
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Content == nil {
			continue
		}
		role := "Student"
		if rec.Direction == "out" {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, *rec.Content)
	}
	return b.String()
}

func (e *Engine) auditMessage(ctx context.Context, userID, direction, content string) {
	rec := repo.MessageRecord{UserID: userID, Direction: direction, Type: "text", Content: &content}
	if err := e.store.InsertMessage(ctx, rec); err != nil {
		e.logger.Warn("message audit insert failed", "user", userID, "error", err)
	}
}

func (e *Engine) observeError(component string) {
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues(component).Inc()
	}
}

// abortSession drops the session and tells the user to start over. Used on
// any downstream failure inside the purchase flow.
func (e *Engine) abortSession(ctx context.Context, user *repo.User, jid types.JID, msg string) {
	e.sessions.Delete(user.WAID)
	e.reply(ctx, user, jid, msg)
}
