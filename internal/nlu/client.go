package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"study-bot/internal/metrics"
	"study-bot/internal/repo"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrUnavailable indicates no usable Gemini key or a failed upstream call;
// callers must fall back to a deterministic templated reply.
var ErrUnavailable = errors.New("text generation unavailable")

// Client talks to the Gemini API using keys stored in the database, rotating
// away from keys that hit their rate limit.
type Client struct {
	repo     repo.Repository
	logger   *slog.Logger
	metrics  *metrics.Metrics
	http     *http.Client
	baseURL  string
	model    string
	cooldown time.Duration
}

// Config holds Gemini client configuration.
type Config struct {
	Model    string
	Timeout  time.Duration
	Cooldown time.Duration
	BaseURL  string
}

// New creates a Gemini client. A nil repository makes the client permanently
// unavailable, which every consumer treats as "use the templated fallback".
func New(repository repo.Repository, logger *slog.Logger, metricRegistry *metrics.Metrics, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		repo:     repository,
		logger:   logger.With("component", "nlu"),
		metrics:  metricRegistry,
		http:     &http.Client{Timeout: timeout},
		baseURL:  base,
		model:    model,
		cooldown: cooldown,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
	Config   *genCfg   `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type genCfg struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// Complete sends a prompt and returns the generated text. Each active key is
// tried at most once per call; keys that answer 429 are put on cooldown.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.repo == nil {
		return "", ErrUnavailable
	}
	keys, err := c.repo.ListActiveGeminiKeys(ctx)
	if err != nil {
		return "", fmt.Errorf("list gemini keys: %w", err)
	}

	now := time.Now()
	tried := 0
	for _, key := range keys {
		if key.CooldownUntil != nil && key.CooldownUntil.After(now) {
			continue
		}
		tried++

		text, retryable, err := c.generate(ctx, key.Value, prompt, maxTokens)
		if err == nil {
			if key.CooldownUntil != nil {
				if cdErr := c.repo.ClearCooldown(ctx, key.ID); cdErr != nil {
					c.logger.Warn("failed clearing key cooldown", "key_id", key.ID, "error", cdErr)
				}
			}
			return text, nil
		}
		if !retryable {
			return "", err
		}
		c.logger.Warn("gemini key rate limited, cooling down", "key_id", key.ID, "error", err)
		if cdErr := c.repo.SetCooldownUntil(ctx, key.ID, now.Add(c.cooldown)); cdErr != nil {
			c.logger.Warn("failed setting key cooldown", "key_id", key.ID, "error", cdErr)
		}
	}

	if tried == 0 {
		c.logger.Warn("no gemini key available, all cooling down or none configured")
	}
	return "", ErrUnavailable
}

// generate performs one API call with one key; retryable reports whether the
// next key should be tried.
func (c *Client) generate(ctx context.Context, apiKey, prompt string, maxTokens int) (text string, retryable bool, err error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	if maxTokens > 0 {
		reqBody.Config = &genCfg{MaxOutputTokens: maxTokens}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", false, fmt.Errorf("marshal gemini request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("new gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe("error", start)
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		c.observe("error", start)
		return "", false, fmt.Errorf("read gemini response: %w", err)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		c.observe("rate_limited", start)
		return "", true, fmt.Errorf("gemini rate limited: %s", strings.TrimSpace(string(body)))
	}
	if res.StatusCode != http.StatusOK {
		c.observe("error", start)
		return "", false, fmt.Errorf("%w: gemini status %d", ErrUnavailable, res.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.observe("error", start)
		return "", false, fmt.Errorf("decode gemini response: %w", err)
	}
	if parsed.Error != nil {
		c.observe("error", start)
		return "", false, fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		c.observe("empty", start)
		return "", false, fmt.Errorf("%w: empty candidates", ErrUnavailable)
	}

	var builder strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		builder.WriteString(p.Text)
	}
	c.observe("ok", start)
	return strings.TrimSpace(builder.String()), false, nil
}

func (c *Client) observe(status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.GeminiRequests.WithLabelValues(status).Inc()
	c.metrics.GeminiLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

const classifyPromptTemplate = `You are the assistant of a nursing study material store on WhatsApp.
The catalog categories are: %s.
Classify the user's message and answer as strict JSON with no code fences:
{"action": "browse"|"question"|"chat", "category": "<catalog category or empty>", "reply": "<short friendly answer, used when action is chat or question>"}
Rules:
- "browse" when the user wants to find, buy or download study materials.
- "question" when the user asks a nursing or exam-content question.
- "chat" for anything else.
User message: %q`

// Classify asks the model to label the user's intent and produce either a
// directive or a plain text answer.
func (c *Client) Classify(ctx context.Context, userText string) (*Reply, error) {
	prompt := fmt.Sprintf(classifyPromptTemplate, strings.Join(repo.Categories, ", "), userText)
	raw, err := c.Complete(ctx, prompt, 512)
	if err != nil {
		return nil, err
	}
	return parseClassification(raw), nil
}

// parseClassification maps model output onto the Reply variant. Anything
// unparseable is treated as plain text so the user still gets an answer.
func parseClassification(raw string) *Reply {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		Action   string `json:"action"`
		Category string `json:"category"`
		Reply    string `json:"reply"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return PlainText(raw)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Action)) {
	case "browse":
		category := strings.ToLower(strings.TrimSpace(parsed.Category))
		if !repo.ValidCategory(category) {
			category = ""
		}
		return Directed(Directive{Step: StepBrowse, Category: category})
	case "question":
		if strings.TrimSpace(parsed.Reply) != "" {
			return PlainText(parsed.Reply)
		}
		return Directed(Directive{Step: StepQuestion})
	default:
		if strings.TrimSpace(parsed.Reply) != "" {
			return PlainText(parsed.Reply)
		}
		return PlainText(raw)
	}
}
