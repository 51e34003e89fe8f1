package recognizer

import (
	"EyeWear/internal/config"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	require.NoError(t, f.Close())
	return path
}

func testConfig(url string) config.OCRConfig {
	return config.OCRConfig{
		ServerURL:      url,
		Token:          "secret",
		PollInterval:   10 * time.Millisecond,
		MaxWait:        time.Second,
		RequestTimeout: time.Second,
	}
}

func TestHTTPUploadThenPoll(t *testing.T) {
	id := uuid.NewString()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		file, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "page.png", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"uuid": id})
	})
	mux.HandleFunc("GET /result/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, id, r.PathValue("id"))
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "আমার সোনার বাংলা"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	text, err := NewHTTP(testConfig(srv.URL), StaticToken("secret"), nil).Recognize(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Equal(t, "আমার সোনার বাংলা", text)
	require.EqualValues(t, 3, polls.Load())
}

func TestHTTPImmediateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "plain result")
	}))
	defer srv.Close()

	text, err := NewHTTP(testConfig(srv.URL), StaticToken("secret"), nil).Recognize(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Equal(t, "plain result", text)
}

func TestHTTPErrors(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name   string
		upload func(w http.ResponseWriter)
		result int
		want   error
	}{
		{
			name:   "upload unauthorized",
			upload: func(w http.ResponseWriter) { w.WriteHeader(http.StatusUnauthorized) },
			want:   ErrUnauthorized,
		},
		{
			name:   "upload failure",
			upload: func(w http.ResponseWriter) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:   ErrBadResponse,
		},
		{
			name: "bad uuid",
			upload: func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusAccepted)
				_, _ = io.WriteString(w, `{"uuid":"not-a-uuid"}`)
			},
			want: ErrBadResponse,
		},
		{
			name:   "result not found",
			upload: accepted(id),
			result: http.StatusNotFound,
			want:   ErrNotFound,
		},
		{
			name:   "result unauthorized",
			upload: accepted(id),
			result: http.StatusUnauthorized,
			want:   ErrUnauthorized,
		},
		{
			name:   "never ready",
			upload: accepted(id),
			result: http.StatusAccepted,
			want:   ErrTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasPrefix(r.URL.Path, "/upload") {
					tt.upload(w)
					return
				}
				w.WriteHeader(tt.result)
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.MaxWait = 100 * time.Millisecond
			_, err := NewHTTP(cfg, StaticToken(cfg.Token), nil).Recognize(context.Background(), writeImage(t))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func accepted(id string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"uuid":"`+id+`"}`)
	}
}

func TestHTTPMissingFile(t *testing.T) {
	_, err := NewHTTP(testConfig("http://127.0.0.1:1"), nil, nil).Recognize(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenAIRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/responses"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "gpt-4o-mini", body["model"])
		raw, _ := json.Marshal(body["input"])
		require.Contains(t, string(raw), "data:image/jpeg;base64,")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "resp_1",
			"object": "response",
			"status": "completed",
			"output": [{
				"type": "message",
				"id": "msg_1",
				"role": "assistant",
				"status": "completed",
				"content": [{"type": "output_text", "text": "  hello page  ", "annotations": []}]
			}]
		}`)
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"), option.WithMaxRetries(0))
	rec := NewOpenAI(&client, config.OCRConfig{Model: "gpt-4o-mini"}, nil, nil)
	text, err := rec.Recognize(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Equal(t, "hello page", text)
}

func TestNewBackend(t *testing.T) {
	r, err := New(config.OCRConfig{Backend: "http"}, nil)
	require.NoError(t, err)
	require.IsType(t, &HTTP{}, r)

	_, err = New(config.OCRConfig{Backend: "tesseract"}, nil)
	require.Error(t, err)
}
