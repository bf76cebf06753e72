package nlu

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"study-bot/internal/repo"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, logger, nil, Config{BaseURL: srv.URL})
}

func TestGenerateJoinsCandidateParts(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Beta blockers "},{"text":"lower heart rate."}]}}]}`))
	})

	text, retryable, err := client.generate(t.Context(), "key", "explain beta blockers", 64)
	require.NoError(t, err)
	require.False(t, retryable)
	require.Equal(t, "Beta blockers lower heart rate.", text)
}

func TestGenerateRateLimitIsRetryable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	})

	_, retryable, err := client.generate(t.Context(), "key", "hi", 0)
	require.Error(t, err)
	require.True(t, retryable)
}

func TestParseClassificationBrowseDirective(t *testing.T) {
	rep := parseClassification(`{"action":"browse","category":"pharmacology"}`)
	require.Equal(t, KindDirective, rep.Kind)
	require.NotNil(t, rep.Directive)
	require.Equal(t, StepBrowse, rep.Directive.Step)
	require.Equal(t, repo.CategoryPharmacology, rep.Directive.Category)
}

func TestParseClassificationStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"action\":\"browse\",\"category\":\"fundamentals\"}\n```"
	rep := parseClassification(raw)
	require.Equal(t, KindDirective, rep.Kind)
	require.Equal(t, repo.CategoryFundamentals, rep.Directive.Category)
}

func TestParseClassificationInvalidCategoryIsDropped(t *testing.T) {
	rep := parseClassification(`{"action":"browse","category":"astrology"}`)
	require.Equal(t, KindDirective, rep.Kind)
	require.Empty(t, rep.Directive.Category)
}

func TestParseClassificationQuestionWithReply(t *testing.T) {
	rep := parseClassification(`{"action":"question","reply":"Beta blockers lower heart rate."}`)
	require.Equal(t, KindPlainText, rep.Kind)
	require.Equal(t, "Beta blockers lower heart rate.", rep.Text)
}

func TestParseClassificationQuestionWithoutReply(t *testing.T) {
	rep := parseClassification(`{"action":"question"}`)
	require.Equal(t, KindDirective, rep.Kind)
	require.Equal(t, StepQuestion, rep.Directive.Step)
}

func TestParseClassificationChatFallsBackToReply(t *testing.T) {
	rep := parseClassification(`{"action":"chat","reply":"Good luck!"}`)
	require.Equal(t, KindPlainText, rep.Kind)
	require.Equal(t, "Good luck!", rep.Text)
}

func TestParseClassificationUnparseableIsPlainText(t *testing.T) {
	rep := parseClassification("Sure, here you go!")
	require.Equal(t, KindPlainText, rep.Kind)
	require.Equal(t, "Sure, here you go!", rep.Text)
}
