package recognizer

import (
	"EyeWear/internal/config"
	"EyeWear/internal/service/image"
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrUnauthorized = errors.New("ocr server: unauthorized")
	ErrNotFound     = errors.New("ocr server: result not found")
	ErrTimeout      = errors.New("ocr server: result wait timeout")
	ErrBadResponse  = errors.New("ocr server: unexpected response")
)

// Recognizer превращает снимок в текст для озвучки.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// New собирает распознаватель по cfg.Backend.
func New(cfg config.OCRConfig, logger *zap.SugaredLogger) (Recognizer, error) {
	switch cfg.Backend {
	case "", "http":
		tokens, err := Tokens(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewHTTP(cfg, tokens, logger), nil
	case "openai":
		client := openai.NewClient(option.WithRequestTimeout(cfg.RequestTimeout))
		return NewOpenAI(&client, cfg, image.NewProcessor(cfg.MaxImageWidth), logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr backend %q", cfg.Backend)
	}
}

// Tokens выбирает авторизацию OCR-сервера: готовый OCR_TOKEN, иначе вход
// ключом устройства. Без файлов ключей запросы идут без авторизации.
func Tokens(cfg config.OCRConfig, logger *zap.SugaredLogger) (oauth2.TokenSource, error) {
	if cfg.Token != "" {
		return StaticToken(cfg.Token), nil
	}
	if cfg.PrivateKeyPath == "" {
		return nil, nil
	}
	auth, err := LoadDeviceAuth(cfg.ServerURL, cfg.PublicKeyPath, cfg.PrivateKeyPath, logger)
	if errors.Is(err, fs.ErrNotExist) {
		if logger != nil {
			logger.Warnw("Ключи устройства не найдены, OCR-сервер без авторизации", "error", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ocr device auth: %w", err)
	}
	return auth, nil
}
