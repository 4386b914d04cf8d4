package embedhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-review/pkg/retry"
)

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	assert.NoError(t, client.Health(context.Background()))
}

func TestClient_Health_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "サービスエラー",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL)
			assert.Error(t, client.Health(context.Background()))
		})
	}
}

func TestClient_Health_Unreachable(t *testing.T) {
	// 接続先が存在しない場合もエラーになる
	client := NewClient("http://127.0.0.1:1")

	assert.Error(t, client.Health(context.Background()))
}

func TestClient_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Texts))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 0.5, 0.25}
		}
		require.NoError(t, json.NewEncoder(w).Encode(embedResponse{Vectors: vectors}))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	vectors, err := client.EmbedBatch(context.Background(), []string{"foo", "bar"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0.5, 0.25}, vectors[0])
	assert.Equal(t, []float32{1, 0.5, 0.25}, vectors[1])
}

func TestClient_EmbedBatch_RateLimited(t *testing.T) {
	// 429はRetry-Afterヘッダ付きの型付きエラーになる
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.EmbedBatch(context.Background(), []string{"foo"})

	require.Error(t, err)
	var rle *retry.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
}

func TestClient_EmbedBatch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.EmbedBatch(context.Background(), []string{"foo"})

	require.Error(t, err)
	assert.False(t, retry.IsRateLimit(err))
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "秒数形式", value: "10", want: 10 * time.Second},
		{name: "空文字列", value: "", want: 0},
		{name: "不正な値", value: "soon", want: 0},
		{name: "過去のHTTP日付", value: "Mon, 02 Jan 2006 15:04:05 GMT", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value))
		})
	}
}
