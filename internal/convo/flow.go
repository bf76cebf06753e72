package convo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"study-bot/internal/repo"
)

// handleSession dispatches one message to the handler for the session's
// current step. "cancel" short-circuits every step.
func (e *Engine) handleSession(ctx context.Context, user *repo.User, jid types.JID, sess Session, text, lowered string) {
	if lowered == "cancel" || lowered == "stop" {
		e.sessions.Delete(user.WAID)
		e.reply(ctx, user, jid, cancelledMessage)
		return
	}
	if lowered == "resume" {
		e.resume(ctx, user, jid, sess)
		return
	}

	switch sess.State {
	case StateCategorySelection:
		e.handleCategorySelection(ctx, user, jid, sess, text)
	case StateMaterialSelection:
		e.handleMaterialSelection(ctx, user, jid, sess, lowered)
	case StateConfirmation:
		e.handleConfirmation(ctx, user, jid, sess, lowered)
	default:
		// Downloading never waits for input, so a message landing here
		// means the session is stale.
		e.abortSession(ctx, user, jid, retryMessage)
	}
}

// resume re-displays the prompt for the step the session is parked at.
func (e *Engine) resume(ctx context.Context, user *repo.User, jid types.JID, sess Session) {
	switch sess.State {
	case StateCategorySelection:
		e.reply(ctx, user, jid, categoryMenu())
	case StateMaterialSelection:
		e.replyScored(ctx, user, jid, sess)
	case StateConfirmation:
		if sess.Selected != nil {
			e.reply(ctx, user, jid, confirmMessage(sess.Selected, sess.ConfirmCode))
			return
		}
		e.abortSession(ctx, user, jid, retryMessage)
	default:
		e.abortSession(ctx, user, jid, retryMessage)
	}
}

func (e *Engine) replyScored(ctx context.Context, user *repo.User, jid types.JID, sess Session) {
	items := make([]ScoredMaterial, 0, len(sess.Candidates))
	for _, m := range sess.Candidates {
		items = append(items, ScoredMaterial{Material: m})
	}
	e.reply(ctx, user, jid, materialListMessage(sess.Category, items))
}

func (e *Engine) handleCategorySelection(ctx context.Context, user *repo.User, jid types.JID, sess Session, text string) {
	idx, ok := matchCategory(text)
	if !ok {
		e.reply(ctx, user, jid, invalidCategoryMessage)
		return
	}
	e.enterCategory(ctx, user, jid, sess, repo.Categories[idx])
}

// enterCategory runs the category search and advances to material
// selection when it finds anything.
func (e *Engine) enterCategory(ctx context.Context, user *repo.User, jid types.JID, sess Session, category string) {
	results, err := e.searcher.Search(ctx, "", category, e.cfg.SearchLimit)
	if err != nil {
		e.logger.Error("category search failed", "category", category, "error", err)
		e.observeError("search")
		e.abortSession(ctx, user, jid, retryMessage)
		return
	}
	if len(results) == 0 {
		sess.Category = ""
		sess.Candidates = nil
		e.sessions.Set(user.WAID, sess)
		e.reply(ctx, user, jid, noMaterialsMessage(category))
		return
	}

	sess.Category = category
	sess.Candidates = make([]repo.Material, 0, len(results))
	for _, r := range results {
		sess.Candidates = append(sess.Candidates, r.Material)
	}
	sess.Selected = nil
	sess.ConfirmCode = ""
	sess.State = StateMaterialSelection
	e.sessions.Set(user.WAID, sess)
	e.reply(ctx, user, jid, materialListMessage(category, results))
}

func (e *Engine) handleMaterialSelection(ctx context.Context, user *repo.User, jid types.JID, sess Session, lowered string) {
	if lowered == "back" {
		sess.State = StateCategorySelection
		sess.Category = ""
		sess.Candidates = nil
		e.sessions.Set(user.WAID, sess)
		e.reply(ctx, user, jid, categoryMenu())
		return
	}

	idx, ok := matchListIndex(lowered, len(sess.Candidates))
	if !ok {
		e.reply(ctx, user, jid, invalidSelectionMessage)
		return
	}

	// Selection is only ever taken from the candidate list shown to the
	// user, never from a raw id.
	selected := sess.Candidates[idx]
	sess.Selected = &selected
	sess.ConfirmCode = newConfirmCode()
	sess.State = StateConfirmation
	e.sessions.Set(user.WAID, sess)
	e.reply(ctx, user, jid, confirmMessage(&selected, sess.ConfirmCode))
}

func (e *Engine) handleConfirmation(ctx context.Context, user *repo.User, jid types.JID, sess Session, lowered string) {
	switch lowered {
	case "back":
		sess.State = StateMaterialSelection
		sess.Selected = nil
		sess.ConfirmCode = ""
		e.sessions.Set(user.WAID, sess)
		e.replyScored(ctx, user, jid, sess)
	case "download", "yes", "confirm":
		if sess.Selected == nil {
			e.abortSession(ctx, user, jid, retryMessage)
			return
		}
		sess.State = StateDownloading
		e.sessions.Set(user.WAID, sess)
		e.finishDownload(ctx, user, jid, sess.Selected)
	default:
		e.reply(ctx, user, jid, confirmHintMessage)
	}
}

// finishDownload delivers the file and always clears the session, whatever
// the outcome.
func (e *Engine) finishDownload(ctx context.Context, user *repo.User, jid types.JID, item *repo.Material) {
	err := e.deliver(ctx, jid, user, item)
	switch {
	case err == nil:
		e.abortSession(ctx, user, jid, deliveredMessage(item))
	case errors.Is(err, errContentMissing):
		e.abortSession(ctx, user, jid, contentMissingMessage)
	case errors.Is(err, errContentTooBig):
		e.abortSession(ctx, user, jid, tooLargeMessage)
	default:
		e.logger.Error("delivery failed", "material", item.ID, "error", err)
		e.observeError("delivery")
		e.abortSession(ctx, user, jid, sendFailedMessage)
	}
}

// matchCategory resolves user input to a category index. Numeric input is
// taken as a 1-based menu position; anything else is fuzzy-matched against
// the category slug and label.
func matchCategory(input string) (int, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(repo.Categories) {
			return n - 1, true
		}
		return 0, false
	}
	if len(input) > 20 {
		input = input[:20]
	}
	for i, cat := range repo.Categories {
		label := strings.ToLower(categoryLabel(cat))
		if strings.Contains(cat, input) || strings.Contains(label, input) {
			return i, true
		}
		if first, _, found := strings.Cut(input, " "); found && strings.Contains(label, first) {
			return i, true
		}
	}
	return 0, false
}

// matchListIndex resolves a 1-based numeric pick against a list of n
// candidates.
func matchListIndex(input string, n int) (int, bool) {
	n64, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n64 < 1 || n64 > n {
		return 0, false
	}
	return n64 - 1, true
}

// newConfirmCode returns a uniformly random six digit order code.
func newConfirmCode() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}
