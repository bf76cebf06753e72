package convo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"study-bot/internal/repo"
)

// maxDeliveryBytes is the hard ceiling for a single chat attachment.
const maxDeliveryBytes = 50 << 20

var (
	errContentMissing = errors.New("material content missing")
	errContentTooBig  = errors.New("material content exceeds delivery limit")
)

// deliver sends the material's file as a document attachment and then
// applies the post-send bookkeeping. The size ceiling is checked against
// stored metadata before any chunk is read.
func (e *Engine) deliver(ctx context.Context, jid types.JID, user *repo.User, item *repo.Material) error {
	info, err := e.store.GetFileInfo(ctx, item.FileID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.observeDelivery("missing")
			return errContentMissing
		}
		e.observeDelivery("error")
		return fmt.Errorf("load file info: %w", err)
	}
	if info.SizeBytes > maxDeliveryBytes {
		e.observeDelivery("too_large")
		return errContentTooBig
	}

	data, _, err := e.store.ReadFile(ctx, item.FileID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.observeDelivery("missing")
			return errContentMissing
		}
		e.observeDelivery("error")
		return fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > maxDeliveryBytes {
		e.observeDelivery("too_large")
		return errContentTooBig
	}

	caption := fmt.Sprintf("%s (%s)", item.Title, priceLabel(item.Price))
	if err := e.sender.SendDocument(ctx, jid, data, info.Name, info.MimeType, caption); err != nil {
		e.observeDelivery("send_failed")
		return fmt.Errorf("send document: %w", err)
	}
	e.observeDelivery("ok")

	// Bookkeeping after a successful send is best effort. The user already
	// has the file, so failures are logged and never surfaced.
	if err := e.store.IncrementDownloads(ctx, item.ID); err != nil {
		e.logger.Warn("increment downloads failed", "material", item.ID, "error", err)
	}
	if amount, paid := parsePrice(item.Price); paid {
		if err := e.store.IncrementPurchases(ctx, item.ID, amount); err != nil {
			e.logger.Warn("increment purchases failed", "material", item.ID, "error", err)
		}
	}
	entry := repo.DownloadEntry{
		UserID:     user.ID,
		MaterialID: item.ID,
		Title:      item.Title,
		Category:   item.Category,
		Price:      item.Price,
	}
	if err := e.store.AppendDownload(ctx, entry); err != nil {
		e.logger.Warn("append download history failed", "material", item.ID, "error", err)
	}
	return nil
}

// parsePrice extracts a numeric amount from a price label. "Free" and the
// empty string are not purchases; any other label is, with zero revenue
// when no numeric amount can be read out of it.
func parsePrice(price string) (float64, bool) {
	price = strings.TrimSpace(price)
	if price == "" || strings.EqualFold(price, "Free") {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, price)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount < 0 {
		return 0, true
	}
	return amount, true
}

func (e *Engine) observeDelivery(outcome string) {
	if e.metrics != nil {
		e.metrics.Deliveries.WithLabelValues(outcome).Inc()
	}
}
