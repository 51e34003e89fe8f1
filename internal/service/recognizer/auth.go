package recognizer

import (
	"EyeWear/internal/service/signaling"
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var ErrAuthFailed = errors.New("ocr server: device authentication failed")

type challenge struct {
	JWT  string `json:"jwt"`
	Text string `json:"text"`
}

type grant struct {
	JWT string `json:"jwt"`
}

// DeviceAuth получает JWT OCR-сервера ключом устройства: POST /challenge
// с публичным ключом, подпись выданного текста, POST /auth.
// Реализует oauth2.TokenSource.
type DeviceAuth struct {
	logger    *zap.SugaredLogger
	baseURL   string
	client    *http.Client
	publicPEM string
	key       *rsa.PrivateKey
}

// LoadDeviceAuth читает ключи устройства из PEM-файлов.
func LoadDeviceAuth(baseURL, publicPath, privatePath string, logger *zap.SugaredLogger) (*DeviceAuth, error) {
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := signaling.ParsePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return NewDeviceAuth(baseURL, string(pub), key, logger), nil
}

func NewDeviceAuth(baseURL, publicPEM string, key *rsa.PrivateKey, logger *zap.SugaredLogger) *DeviceAuth {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DeviceAuth{
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		publicPEM: publicPEM,
		key:       key,
	}
}

// SignPSS подписывает текст RSA-PSS (SHA-256, максимальная соль) и кодирует в base64.
func SignPSS(key *rsa.PrivateKey, text string) (string, error) {
	sum := sha256.Sum256([]byte(text))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, sum[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Token проходит challenge/response. Срок JWT сервер не сообщает, поэтому
// токен живёт до первого 401.
func (a *DeviceAuth) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	a.logger.Infow("Authenticating device on OCR server", "url", a.baseURL)

	var ch challenge
	if err := a.post(ctx, "/challenge", map[string]string{"public_key": a.publicPEM}, &ch); err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}
	if ch.JWT == "" || ch.Text == "" {
		return nil, fmt.Errorf("challenge: %w: empty challenge", ErrAuthFailed)
	}

	signed, err := SignPSS(a.key, ch.Text)
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}

	var g grant
	if err := a.post(ctx, "/auth", map[string]string{"jwt": ch.JWT, "signed_text": signed}, &g); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if g.JWT == "" {
		return nil, fmt.Errorf("auth: %w: empty token", ErrAuthFailed)
	}
	a.logger.Infow("Device authenticated on OCR server")
	return &oauth2.Token{AccessToken: g.JWT, TokenType: "Bearer"}, nil
}

func (a *DeviceAuth) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuthFailed, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

// renewable кэширует токен через oauth2.ReuseTokenSource; Reset выбрасывает
// кэш, и следующий запрос получает токен заново.
type renewable struct {
	src oauth2.TokenSource

	mu  sync.Mutex
	cur oauth2.TokenSource
}

func newRenewable(src oauth2.TokenSource) *renewable {
	return &renewable{src: src, cur: oauth2.ReuseTokenSource(nil, src)}
}

func (r *renewable) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	cur := r.cur
	r.mu.Unlock()
	return cur.Token()
}

func (r *renewable) Reset() {
	r.mu.Lock()
	r.cur = oauth2.ReuseTokenSource(nil, r.src)
	r.mu.Unlock()
}
