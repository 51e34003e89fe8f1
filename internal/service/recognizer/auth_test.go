package recognizer

import (
	"EyeWear/internal/config"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func deviceKeys(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func verifyPSS(t *testing.T, pub *rsa.PublicKey, text, signed string) {
	t.Helper()
	sig, err := base64.StdEncoding.DecodeString(signed)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(text))
	require.NoError(t, rsa.VerifyPSS(pub, crypto.SHA256, sum[:], sig, &rsa.PSSOptions{Hash: crypto.SHA256}))
}

func TestSignPSS(t *testing.T) {
	key, _ := deviceKeys(t)
	signed, err := SignPSS(key, "nonce-42")
	require.NoError(t, err)
	verifyPSS(t, &key.PublicKey, "nonce-42", signed)
}

func TestDeviceAuthReauthenticatesOnUnauthorized(t *testing.T) {
	key, publicPEM := deviceKeys(t)
	var challenges, grants, uploads atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /challenge", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, publicPEM, body["public_key"])
		n := challenges.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"jwt":  "challenge-" + strconv.Itoa(int(n)),
			"text": "nonce-" + strconv.Itoa(int(n)),
		})
	})
	mux.HandleFunc("POST /auth", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		n := grants.Add(1)
		require.Equal(t, "challenge-"+strconv.Itoa(int(n)), body["jwt"])
		verifyPSS(t, &key.PublicKey, "nonce-"+strconv.Itoa(int(n)), body["signed_text"])
		_ = json.NewEncoder(w).Encode(map[string]string{"jwt": "session-" + strconv.Itoa(int(n))})
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		// первый выданный токен сервер уже считает просроченным
		if r.Header.Get("Authorization") != "Bearer session-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "recognized")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := NewHTTP(testConfig(srv.URL), NewDeviceAuth(srv.URL, publicPEM, key, nil), nil)
	text, err := rec.Recognize(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Equal(t, "recognized", text)
	require.EqualValues(t, 2, challenges.Load())
	require.EqualValues(t, 2, grants.Load())
	require.EqualValues(t, 2, uploads.Load())

	// токен кэшируется между снимками
	_, err = rec.Recognize(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.EqualValues(t, 2, challenges.Load())
	require.EqualValues(t, 3, uploads.Load())
}

func TestDeviceAuthFailure(t *testing.T) {
	key, publicPEM := deviceKeys(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewDeviceAuth(srv.URL, publicPEM, key, nil).Token()
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestTokens(t *testing.T) {
	src, err := Tokens(config.OCRConfig{Token: "secret"}, nil)
	require.NoError(t, err)
	tok, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, "secret", tok.AccessToken)

	dir := t.TempDir()
	src, err = Tokens(config.OCRConfig{
		PublicKeyPath:  filepath.Join(dir, "missing_public.pem"),
		PrivateKeyPath: filepath.Join(dir, "missing_private.pem"),
	}, nil)
	require.NoError(t, err)
	require.Nil(t, src)

	key, publicPEM := deviceKeys(t)
	pub := filepath.Join(dir, "device_public.pem")
	priv := filepath.Join(dir, "device_private.pem")
	require.NoError(t, os.WriteFile(pub, []byte(publicPEM), 0o600))
	require.NoError(t, os.WriteFile(priv, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))
	src, err = Tokens(config.OCRConfig{ServerURL: "http://127.0.0.1:1", PublicKeyPath: pub, PrivateKeyPath: priv}, nil)
	require.NoError(t, err)
	require.IsType(t, &DeviceAuth{}, src)

	require.NoError(t, os.WriteFile(priv, []byte("garbage"), 0o600))
	_, err = Tokens(config.OCRConfig{PublicKeyPath: pub, PrivateKeyPath: priv}, nil)
	require.Error(t, err)
}
