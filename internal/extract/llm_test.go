package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvasseur/ski-catalog-scraper/internal/source"
)

func newTestLLMExtractor(t *testing.T) *LLMExtractor {
	t.Helper()

	profile := &source.Profile{
		Name:           "test-shop",
		BaseURL:        "https://shop.test/catalog",
		RequiredFields: []string{"model", "description", "price"},
	}

	e, err := NewLLMExtractor(LLMOptions{
		APIKey:  "test-key",
		BaseURL: "https://llm.test/api/v1",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, profile, slog.Default())
	require.NoError(t, err)

	httpmock.ActivateNonDefault(e.client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return e
}

func chatReply(t *testing.T, content string) httpmock.Responder {
	t.Helper()

	body := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	return httpmock.NewStringResponder(200, string(data)).
		HeaderSet(http.Header{"Content-Type": []string{"application/json"}})
}

func TestLLMExtractor_Extract(t *testing.T) {
	t.Run("decodes a clean reply", func(t *testing.T) {
		e := newTestLLMExtractor(t)
		httpmock.RegisterResponder("POST", "https://llm.test/api/v1/chat/completions",
			chatReply(t, `{"items":[{"model":"Merino 200","description":"Half-zip","price":"89,00 €"}]}`))

		candidates, err := e.Extract(context.Background(), "<html>listing</html>")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "Merino 200", candidates[0]["model"])
		assert.Equal(t, "89,00 €", candidates[0]["price"])
	})

	t.Run("recovers JSON wrapped in prose", func(t *testing.T) {
		e := newTestLLMExtractor(t)
		reply := "Here is the extraction you asked for:\n```json\n" +
			`{"items":[{"model":"Aero Top","description":"Crew neck","price":"54,50 €"}]}` +
			"\n```\nLet me know if you need more."
		httpmock.RegisterResponder("POST", "https://llm.test/api/v1/chat/completions",
			chatReply(t, reply))

		candidates, err := e.Extract(context.Background(), "<html>listing</html>")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "Aero Top", candidates[0]["model"])
	})

	t.Run("numeric values are coerced to strings", func(t *testing.T) {
		e := newTestLLMExtractor(t)
		httpmock.RegisterResponder("POST", "https://llm.test/api/v1/chat/completions",
			chatReply(t, `{"items":[{"model":"Aero Top","description":"Crew neck","price":46.9}]}`))

		candidates, err := e.Extract(context.Background(), "<html>listing</html>")
		require.NoError(t, err)
		assert.Equal(t, "46.9", candidates[0]["price"])
	})

	t.Run("reply without items is an extraction error", func(t *testing.T) {
		e := newTestLLMExtractor(t)
		httpmock.RegisterResponder("POST", "https://llm.test/api/v1/chat/completions",
			chatReply(t, "Sorry, I could not find any products."))

		_, err := e.Extract(context.Background(), "<html>listing</html>")
		assert.Error(t, err)
	})

	t.Run("api error status surfaces", func(t *testing.T) {
		e := newTestLLMExtractor(t)
		httpmock.RegisterResponder("POST", "https://llm.test/api/v1/chat/completions",
			httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":"rate limited"}`))

		_, err := e.Extract(context.Background(), "<html>listing</html>")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}

func TestNewLLMExtractorRequiresKey(t *testing.T) {
	_, err := NewLLMExtractor(LLMOptions{}, &source.Profile{}, slog.Default())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestTrimContent(t *testing.T) {
	profile := testProfile()
	profile.RequiredFields = []string{"model", "price"}

	e := &LLMExtractor{itemSelector: profile.ItemSelector, fields: profile.RequiredFields, logger: slog.Default()}

	t.Run("keeps only item markup", func(t *testing.T) {
		trimmed := e.trimContent(catalogPage)
		assert.Contains(t, trimmed, "Thermal Base Layer")
		assert.NotContains(t, trimmed, "<body>")
	})

	t.Run("falls back to full markup when nothing matches", func(t *testing.T) {
		html := "<html><body><div>bare</div></body></html>"
		assert.Equal(t, html, e.trimContent(html))
	})
}
