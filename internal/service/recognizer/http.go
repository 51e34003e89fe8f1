package recognizer

import (
	"EyeWear/internal/config"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type uploadResponse struct {
	UUID string `json:"uuid"`
	Text string `json:"text"`
}

type resultResponse struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// HTTP отправляет снимок на OCR-сервер: POST /upload, затем опрос
// GET /result/<uuid> до готовности.
type HTTP struct {
	logger  *zap.SugaredLogger
	baseURL string
	client  *http.Client
	tokens  *renewable
	poll    time.Duration
	maxWait time.Duration
}

// StaticToken — источник постоянного bearer-токена; nil для пустой строки.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// NewHTTP создаёт клиента OCR-сервера. tokens может быть nil: тогда
// запросы идут без авторизации.
func NewHTTP(cfg config.OCRConfig, tokens oauth2.TokenSource, logger *zap.SugaredLogger) *HTTP {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	client := &http.Client{Timeout: cfg.RequestTimeout}
	var renew *renewable
	if tokens != nil {
		renew = newRenewable(tokens)
		client.Transport = &oauth2.Transport{Source: renew}
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &HTTP{
		logger:  logger,
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		client:  client,
		tokens:  renew,
		poll:    poll,
		maxWait: cfg.MaxWait,
	}
}

// Recognize распознаёт снимок. На 401 токен сбрасывается и снимок
// отправляется ещё раз, один раз.
func (h *HTTP) Recognize(ctx context.Context, path string) (string, error) {
	text, err := h.recognize(ctx, path)
	if errors.Is(err, ErrUnauthorized) && h.tokens != nil && ctx.Err() == nil {
		h.logger.Warnw("Unauthorized on OCR server, re-authenticating", "path", path)
		h.tokens.Reset()
		text, err = h.recognize(ctx, path)
	}
	return text, err
}

func (h *HTTP) recognize(ctx context.Context, path string) (string, error) {
	requestID := uuid.NewString()
	resp, err := h.upload(ctx, path, requestID)
	if err != nil {
		return "", err
	}
	if resp.UUID == "" {
		return resp.Text, nil
	}
	if _, err := uuid.Parse(resp.UUID); err != nil {
		return "", fmt.Errorf("%w: bad uuid %q", ErrBadResponse, resp.UUID)
	}
	h.logger.Infow("Image accepted by OCR server", "path", path, "uuid", resp.UUID, "requestID", requestID)

	waitCtx := ctx
	if h.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeoutCause(ctx, h.maxWait, ErrTimeout)
		defer cancel()
	}
	return h.await(waitCtx, resp.UUID, requestID)
}

func (h *HTTP) upload(ctx context.Context, path, requestID string) (uploadResponse, error) {
	body, contentType, err := multipartImage(path)
	if err != nil {
		return uploadResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/upload", body)
	if err != nil {
		return uploadResponse{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", requestID)

	res, err := h.client.Do(req)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("upload: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return uploadResponse{}, fmt.Errorf("upload: read body: %w", err)
	}

	switch res.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusUnauthorized:
		return uploadResponse{}, ErrUnauthorized
	default:
		return uploadResponse{}, fmt.Errorf("%w: upload status %d: %s", ErrBadResponse, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	if !isJSON(res) && res.StatusCode == http.StatusOK {
		// сервер без очереди отвечает текстом сразу
		return uploadResponse{Text: string(raw)}, nil
	}
	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return uploadResponse{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if res.StatusCode == http.StatusAccepted && out.UUID == "" {
		return uploadResponse{}, fmt.Errorf("%w: no uuid in upload response", ErrBadResponse)
	}
	return out, nil
}

func (h *HTTP) await(ctx context.Context, id, requestID string) (string, error) {
	for {
		text, done, err := h.fetch(ctx, id, requestID)
		if done || err != nil {
			return text, err
		}
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case <-time.After(h.poll):
		}
	}
}

func (h *HTTP) fetch(ctx context.Context, id, requestID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/result/"+id, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("X-Request-ID", requestID)

	res, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, context.Cause(ctx)
		}
		// сетевой сбой при опросе не повод бросать снимок
		h.logger.Warnw("Polling error", "uuid", id, "error", err)
		return "", false, nil
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusAccepted:
		_, _ = io.Copy(io.Discard, res.Body)
		return "", false, nil
	case http.StatusOK:
		raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return "", false, fmt.Errorf("result: read body: %w", err)
		}
		if !isJSON(res) {
			return string(raw), true, nil
		}
		var out resultResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		return out.Text, true, nil
	case http.StatusNotFound:
		return "", false, ErrNotFound
	case http.StatusUnauthorized:
		return "", false, ErrUnauthorized
	default:
		return "", false, fmt.Errorf("%w: result status %d", ErrBadResponse, res.StatusCode)
	}
}

func isJSON(res *http.Response) bool {
	return strings.Contains(res.Header.Get("Content-Type"), "application/json")
}

func multipartImage(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
