package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAILoader_DefaultModelAndProbe(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.6,0.8]}]}`)
	}))
	defer srv.Close()

	load := OpenAILoader("sk-test", srv.URL+"/v1", "")
	for range 2 {
		var seen []float64
		model, err := load(context.Background(), func(pct float64) { seen = append(seen, pct) })
		require.NoError(t, err)

		assert.Equal(t, "openai/text-embedding-3-small", model.Name())
		assert.Equal(t, 2, model.Dimension())
		assert.Equal(t, []float64{0, 100}, seen)
	}
	assert.Equal(t, []string{"text-embedding-3-small", "text-embedding-3-small"}, models)
}

func TestOpenAILoader_MissingKey(t *testing.T) {
	_, err := OpenAILoader("", "", "")(context.Background(), func(float64) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key not configured")
}
