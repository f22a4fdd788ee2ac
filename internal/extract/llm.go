package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
	"github.com/lvasseur/ski-catalog-scraper/internal/source"
)

// ErrMissingAPIKey aborts the run before any network activity when the LLM
// path is selected without a credential.
var ErrMissingAPIKey = errors.New("OPENROUTER_API_KEY is not set")

// LLMExtractor asks an OpenRouter-hosted model to lift listings out of page
// content. The markup is first trimmed to the profile's item nodes when a
// selector is available, which keeps prompts small on tag-heavy pages.
type LLMExtractor struct {
	client       *resty.Client
	model        string
	temperature  float64
	itemSelector string
	fields       []string
	logger       *slog.Logger
}

// LLMOptions configures the OpenRouter client.
type LLMOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

func NewLLMExtractor(opts LLMOptions, profile *source.Profile, logger *slog.Logger) (*LLMExtractor, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Authorization", "Bearer "+opts.APIKey)
	client.SetHeader("Content-Type", "application/json")

	return &LLMExtractor{
		client:       client,
		model:        opts.Model,
		temperature:  opts.Temperature,
		itemSelector: profile.ItemSelector,
		fields:       profile.RequiredFields,
		logger:       logger.With("component", "llm_extractor"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *LLMExtractor) Extract(ctx context.Context, html string) ([]models.Candidate, error) {
	content := e.trimContent(html)

	req := chatRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []chatMessage{
			{Role: "user", Content: e.prompt(content)},
		},
	}

	var out chatResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("llm returned status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("llm reply carried no choices")
	}

	candidates, err := parseItems(out.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("extracted candidates", "count", len(candidates))
	return candidates, nil
}

// Close is a no-op; the extractor holds no session resources.
func (e *LLMExtractor) Close() error {
	return nil
}

func (e *LLMExtractor) prompt(content string) string {
	return fmt.Sprintf(
		"Extract every product listing from this catalog page content. "+
			"Respond with only a JSON object of the form {\"items\": [...]}, "+
			"where each item has the string keys %s. "+
			"Use an empty string for values the page does not show.\n\n%s",
		strings.Join(e.fields, ", "), content)
}

// trimContent narrows the markup to the item nodes so the prompt spends its
// tokens on listings rather than navigation chrome. Falls back to the full
// markup when the selector finds nothing.
func (e *LLMExtractor) trimContent(html string) string {
	if e.itemSelector == "" {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	sel := doc.Find(e.itemSelector)
	if sel.Length() == 0 {
		return html
	}

	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			b.WriteString(h)
			b.WriteString("\n")
		}
	})
	return b.String()
}

var itemsPattern = regexp.MustCompile(`(?s)\{.*"items".*\}`)

// parseItems decodes the model's reply. Models wrap JSON in prose or code
// fences often enough that a failed direct decode falls back to the first
// object containing an "items" key.
func parseItems(reply string) ([]models.Candidate, error) {
	var payload struct {
		Items []map[string]any `json:"items"`
	}

	if err := json.Unmarshal([]byte(reply), &payload); err != nil {
		match := itemsPattern.FindString(reply)
		if match == "" {
			return nil, fmt.Errorf("no items object in llm reply")
		}
		if err := json.Unmarshal([]byte(match), &payload); err != nil {
			return nil, fmt.Errorf("failed to decode llm reply: %w", err)
		}
	}

	candidates := make([]models.Candidate, 0, len(payload.Items))
	for _, item := range payload.Items {
		c := models.Candidate{}
		for _, field := range models.Fields {
			v, ok := item[field]
			if !ok {
				continue
			}
			if s := coerceString(v); s != "" {
				c[field] = s
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
