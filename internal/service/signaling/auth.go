package signaling

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrAuthFailed = errors.New("signaling: authentication failed")

type challengeResponse struct {
	ChallengeToken string `json:"challengeToken"`
	ChallengeText  string `json:"challengeText"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Authenticator получает токен устройства по схеме challenge/response:
// сервер выдаёт текст, устройство подписывает его своим RSA-ключом.
type Authenticator struct {
	apiURL    string
	client    *http.Client
	publicKey string
	key       *rsa.PrivateKey
}

// LoadAuthenticator читает ключи устройства из PEM-файлов.
func LoadAuthenticator(apiURL, publicPath, privatePath string) (*Authenticator, error) {
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := ParsePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return NewAuthenticator(apiURL, string(pub), key), nil
}

func NewAuthenticator(apiURL, publicPEM string, key *rsa.PrivateKey) *Authenticator {
	return &Authenticator{
		apiURL:    strings.TrimRight(apiURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		publicKey: PublicKeyBody(publicPEM),
		key:       key,
	}
}

// PublicKeyBody — base64-тело PEM без строк BEGIN/END, в таком виде его ждёт сервер.
func PublicKeyBody(pemText string) string {
	lines := strings.Split(strings.TrimSpace(pemText), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "-----") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// ParsePrivateKey разбирает RSA-ключ в PKCS#1 или PKCS#8.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key: no PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key: %T is not RSA", parsed)
	}
	return key, nil
}

// SignChallenge подписывает текст PKCS#1 v1.5 с SHA-256 и кодирует в base64.
func SignChallenge(key *rsa.PrivateKey, text string) (string, error) {
	sum := sha256.Sum256([]byte(text))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Token проходит challenge/response и возвращает токен для authenticate.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	var ch challengeResponse
	if err := a.post(ctx, "/api/challenge", map[string]string{"publicKey": a.publicKey}, &ch); err != nil {
		return "", fmt.Errorf("challenge: %w", err)
	}
	if ch.ChallengeToken == "" || ch.ChallengeText == "" {
		return "", fmt.Errorf("challenge: %w: empty challenge", ErrAuthFailed)
	}

	signed, err := SignChallenge(a.key, ch.ChallengeText)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}

	var res authResponse
	if err := a.post(ctx, "/api/auth", map[string]string{
		"challengeToken":  ch.ChallengeToken,
		"signedChallenge": signed,
	}, &res); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	if res.Token == "" {
		return "", fmt.Errorf("auth: %w: empty token", ErrAuthFailed)
	}
	return res.Token, nil
}

func (a *Authenticator) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+path, bytes.NewReader(payload))
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
