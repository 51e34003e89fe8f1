package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` // Режим дебага: development-логгер и уровень debug
	LogJSON   bool `env:"LOG_JSON"`   // JSON-логи (production-энкодер zap)

	Registry   RegistryConfig
	Shm        ShmConfig
	Input      InputConfig
	Sound      SoundConfig
	Call       CallConfig
	OCR        OCRConfig
	Camera     CameraConfig
	TTSEnabled bool `env:"TTS_ENABLED"` // Озвучивать результат OCR
	GoogleTTS  GoogleTTSConfig
	Supervisor SupervisorConfig
}

// RegistryConfig — реестр процессов (pid-файлы).
type RegistryConfig struct {
	Root         string        `env:"REGISTRY_ROOT"`          // Каталог pid-файлов
	PollInterval time.Duration `env:"REGISTRY_POLL_INTERVAL"` // Период опроса при ожидании регистрации
}

// ShmConfig — почтовые ящики в разделяемой памяти.
type ShmConfig struct {
	Backend string `env:"SHM_BACKEND"` // posix|sysv
	Dir     string `env:"SHM_DIR"`     // Каталог POSIX-сегментов
}

// InputConfig — аппаратный источник нажатий.
type InputConfig struct {
	Device          string        `env:"INPUT_DEVICE"`                   // Путь /dev/input/eventN, пусто — автопоиск
	Exclude         []string      `env:"INPUT_EXCLUDE" envSeparator:";"` // Подстроки имён устройств, которые пропускаются
	Reconnect       time.Duration `env:"INPUT_RECONNECT"`                // Пауза перед переподключением
	Grab            bool          `env:"INPUT_GRAB"`                     // Эксклюзивный захват устройства
	DoubleTapWindow time.Duration `env:"DOUBLE_TAP_WINDOW"`              // Окно двойного нажатия
	LongPress       time.Duration `env:"LONG_PRESS_THRESHOLD"`           // Порог долгого нажатия
}

// SoundConfig — звуковые сигналы.
type SoundConfig struct {
	Enabled  bool    `env:"SOUND_ENABLED"`
	Dir      string  `env:"SOUNDS_DIR"`      // Каталог wav-файлов
	VolumeDB float64 `env:"SOUND_VOLUME_DB"` // Громкость в dB (отрицательные — тише)
}

// CallConfig — клиент звонков.
type CallConfig struct {
	SignalingServer string        `env:"SIGNALING_SERVER"`    // ws:// адрес сигнального сервера
	APIServer       string        `env:"API_SERVER"`          // http:// адрес API
	DeviceToken     string        `env:"DEVICE_TOKEN"`        // Готовый токен устройства; без него вход по ключу
	PublicKeyPath   string        `env:"DEVICE_PUBLIC_KEY"`   // PEM публичного ключа устройства
	PrivateKeyPath  string        `env:"DEVICE_PRIVATE_KEY"`  // PEM приватного ключа устройства
	Reconnect       time.Duration `env:"SIGNALING_RECONNECT"` // Пауза перед переподключением
	Media           bool          `env:"CALL_MEDIA"`          // Поднимать видеоканал WebRTC после принятия звонка
	STUNServer      string        `env:"STUN_SERVER"`         // stun:host:port
	VideoCommand    string        `env:"VIDEO_COMMAND"`       // Утилита потока H.264 (rpicam-vid)
	VideoWidth      int           `env:"VIDEO_WIDTH"`
	VideoHeight     int           `env:"VIDEO_HEIGHT"`
	VideoFPS        int           `env:"VIDEO_FPS"`
	VideoBitrate    int           `env:"VIDEO_BITRATE"` // бит/с
}

// OCRConfig — распознавание текста.
type OCRConfig struct {
	Backend              string        `env:"OCR_BACKEND"`                // http|openai
	ServerURL            string        `env:"OCR_SERVER_URL"`             // Адрес OCR-сервера (backend http)
	Token                string        `env:"OCR_TOKEN"`                  // Bearer-токен OCR-сервера; без него вход по ключу
	PublicKeyPath        string        `env:"OCR_PUBLIC_KEY"`             // PEM публичного ключа для /challenge
	PrivateKeyPath       string        `env:"OCR_PRIVATE_KEY"`            // PEM приватного ключа для подписи
	Model                string        `env:"OCR_MODEL"`                  // Модель OpenAI (backend openai)
	Prompt               string        `env:"OCR_PROMPT"`                 // Инструкция для модели
	PollInterval         time.Duration `env:"OCR_POLL_INTERVAL"`          // Период опроса /result/<uuid>
	MaxWait              time.Duration `env:"OCR_MAX_WAIT"`               // Сколько ждать результат одного снимка
	RequestTimeout       time.Duration `env:"OCR_REQUEST_TIMEOUT"`        // Таймаут одного HTTP-запроса
	RetryDelay           time.Duration `env:"OCR_RETRY_DELAY"`            // Пауза перед повтором после ошибки
	MaxConsecutiveErrors int           `env:"OCR_MAX_CONSECUTIVE_ERRORS"` // Ошибок подряд до отказа от снимка
	MaxImageWidth        int           `env:"OCR_MAX_IMAGE_WIDTH"`        // Ширина, до которой уменьшается снимок перед отправкой
}

// CameraConfig — съёмка и хранение снимков.
type CameraConfig struct {
	Backend   string        `env:"CAMERA_BACKEND"` // rpicam|screen
	Command   string        `env:"CAMERA_COMMAND"` // Утилита съёмки
	Quality   int           `env:"CAMERA_QUALITY"` // Качество JPEG
	Timeout   time.Duration `env:"CAMERA_TIMEOUT"` // Время автофокуса до снимка
	ImagesDir string        `env:"IMAGES_DIR"`     // Каталог снимков
	ImagesTTL time.Duration `env:"IMAGES_TTL"`     // Через сколько снимок считается старым
}

// GoogleTTSConfig конфигурация для синтеза речи через Google Cloud Text-to-Speech.
type GoogleTTSConfig struct {
	// Путь к файлу ключа сервисного аккаунта. Фактически читается из ENV GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsPath string  `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Language        string  `env:"GOOGLE_TTS_LANGUAGE"`
	Voice           string  `env:"GOOGLE_TTS_VOICE"`
	SpeakingRate    float64 `env:"GOOGLE_TTS_SPEAKING_RATE"`
	Pitch           float64 `env:"GOOGLE_TTS_PITCH"`
	VolumeGainDb    float64 `env:"GOOGLE_TTS_VOLUME_DB"`
	// Тип входа: text|ssml. Пусто — text.
	InputType string `env:"GOOGLE_TTS_INPUT_TYPE"`
}

// SupervisorConfig — запуск ролей.
type SupervisorConfig struct {
	Roles       []string      `env:"ROLES" envSeparator:";"` // Порядок запуска ролей
	BinDir      string        `env:"BIN_DIR"`                // Каталог бинарей ролей, пусто — рядом с супервизором
	StartDelay  time.Duration `env:"ROLE_START_DELAY"`       // Пауза между запусками
	StopTimeout time.Duration `env:"ROLE_STOP_TIMEOUT"`      // Сколько ждать после SIGTERM до SIGKILL
}

var ErrInvalid = errors.New("config: invalid value")

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode: false,
		Registry: RegistryConfig{
			Root:         "/tmp/.pid",
			PollInterval: time.Second,
		},
		Shm: ShmConfig{
			Backend: "posix",
			Dir:     "/dev/shm",
		},
		Input: InputConfig{
			Exclude:         []string{"hdmi"},
			Reconnect:       10 * time.Second,
			Grab:            true,
			DoubleTapWindow: 500 * time.Millisecond,
			LongPress:       time.Second,
		},
		Sound: SoundConfig{
			Enabled: true,
			Dir:     "assets",
		},
		Call: CallConfig{
			SignalingServer: "ws://127.0.0.1:8081",
			APIServer:       "http://127.0.0.1:8081",
			PublicKeyPath:   "keys/device_public.pem",
			PrivateKeyPath:  "keys/device_private.pem",
			Reconnect:       5 * time.Second,
			Media:           true,
			STUNServer:      "stun:stun.l.google.com:19302",
			VideoCommand:    "rpicam-vid",
			VideoWidth:      640,
			VideoHeight:     480,
			VideoFPS:        30,
			VideoBitrate:    512000,
		},
		OCR: OCRConfig{
			Backend:              "http",
			ServerURL:            "http://127.0.0.1:8085",
			PublicKeyPath:        "keys/device_public.pem",
			PrivateKeyPath:       "keys/device_private.pem",
			Model:                "gpt-4o",
			Prompt:               "Распознай весь текст на изображении и верни его без комментариев.",
			PollInterval:         10 * time.Second,
			MaxWait:              2 * time.Minute,
			RequestTimeout:       30 * time.Second,
			RetryDelay:           5 * time.Second,
			MaxConsecutiveErrors: 3,
			MaxImageWidth:        1600,
		},
		Camera: CameraConfig{
			Backend:   "rpicam",
			Command:   "rpicam-still",
			Quality:   90,
			Timeout:   2 * time.Second,
			ImagesDir: "captured_images",
			ImagesTTL: 10 * time.Minute,
		},
		TTSEnabled: true,
		GoogleTTS: GoogleTTSConfig{
			CredentialsPath: "service-account.json",
			Language:        "bn-IN",
			Voice:           "bn-IN-Standard-A",
			SpeakingRate:    1.0,
		},
		Supervisor: SupervisorConfig{
			Roles:       []string{"call_client", "ocr_process", "earbud_input"},
			StartDelay:  2 * time.Second,
			StopTimeout: 5 * time.Second,
		},
	}
}

// NewConfig загружает конфигурацию приложения из .env, окружения и os.Args.
func NewConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load: Defaults -> .env -> окружение -> флаги args.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	fs := flag.NewFlagSet("eyewear", flag.ContinueOnError)
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "писать логи в JSON")
	// Реестр и ящики
	fs.StringVar(&cfg.Registry.Root, "registry-root", cfg.Registry.Root, "каталог pid-файлов")
	fs.DurationVar(&cfg.Registry.PollInterval, "registry-poll-interval", cfg.Registry.PollInterval, "период опроса реестра, напр. 1s")
	fs.StringVar(&cfg.Shm.Backend, "shm-backend", cfg.Shm.Backend, "реализация разделяемой памяти: posix|sysv")
	fs.StringVar(&cfg.Shm.Dir, "shm-dir", cfg.Shm.Dir, "каталог POSIX-сегментов")
	// Ввод
	fs.StringVar(&cfg.Input.Device, "input-device", cfg.Input.Device, "устройство ввода /dev/input/eventN; пусто — автопоиск")
	excludeFlag := strings.Join(cfg.Input.Exclude, ";")
	fs.StringVar(&excludeFlag, "input-exclude", excludeFlag, "подстроки имён устройств, разделённые ';'")
	fs.DurationVar(&cfg.Input.Reconnect, "input-reconnect", cfg.Input.Reconnect, "пауза перед переподключением устройства")
	fs.BoolVar(&cfg.Input.Grab, "input-grab", cfg.Input.Grab, "эксклюзивный захват устройства")
	fs.DurationVar(&cfg.Input.DoubleTapWindow, "double-tap-window", cfg.Input.DoubleTapWindow, "окно двойного нажатия")
	fs.DurationVar(&cfg.Input.LongPress, "long-press-threshold", cfg.Input.LongPress, "порог долгого нажатия")
	// Звук
	fs.BoolVar(&cfg.Sound.Enabled, "sound-enabled", cfg.Sound.Enabled, "проигрывать звуковые сигналы")
	fs.StringVar(&cfg.Sound.Dir, "sounds-dir", cfg.Sound.Dir, "каталог звуковых сигналов")
	fs.Float64Var(&cfg.Sound.VolumeDB, "sound-volume-db", cfg.Sound.VolumeDB, "громкость сигналов в dB")
	// Звонки
	fs.StringVar(&cfg.Call.SignalingServer, "signaling-server", cfg.Call.SignalingServer, "адрес сигнального сервера (ws://)")
	fs.StringVar(&cfg.Call.APIServer, "api-server", cfg.Call.APIServer, "адрес API (http://)")
	fs.StringVar(&cfg.Call.DeviceToken, "device-token", cfg.Call.DeviceToken, "токен устройства")
	fs.StringVar(&cfg.Call.PublicKeyPath, "device-public-key", cfg.Call.PublicKeyPath, "PEM публичного ключа устройства")
	fs.StringVar(&cfg.Call.PrivateKeyPath, "device-private-key", cfg.Call.PrivateKeyPath, "PEM приватного ключа устройства")
	fs.DurationVar(&cfg.Call.Reconnect, "signaling-reconnect", cfg.Call.Reconnect, "пауза перед переподключением к сигнальному серверу")
	fs.BoolVar(&cfg.Call.Media, "call-media", cfg.Call.Media, "поднимать видеоканал WebRTC")
	fs.StringVar(&cfg.Call.STUNServer, "stun-server", cfg.Call.STUNServer, "STUN-сервер, напр. stun:stun.l.google.com:19302")
	fs.StringVar(&cfg.Call.VideoCommand, "video-command", cfg.Call.VideoCommand, "утилита потока H.264")
	fs.IntVar(&cfg.Call.VideoWidth, "video-width", cfg.Call.VideoWidth, "ширина видео")
	fs.IntVar(&cfg.Call.VideoHeight, "video-height", cfg.Call.VideoHeight, "высота видео")
	fs.IntVar(&cfg.Call.VideoFPS, "video-fps", cfg.Call.VideoFPS, "кадров в секунду")
	fs.IntVar(&cfg.Call.VideoBitrate, "video-bitrate", cfg.Call.VideoBitrate, "битрейт видео, бит/с")
	// OCR
	fs.StringVar(&cfg.OCR.Backend, "ocr-backend", cfg.OCR.Backend, "распознавание: http|openai")
	fs.StringVar(&cfg.OCR.ServerURL, "ocr-server-url", cfg.OCR.ServerURL, "адрес OCR-сервера")
	fs.StringVar(&cfg.OCR.Token, "ocr-token", cfg.OCR.Token, "bearer-токен OCR-сервера")
	fs.StringVar(&cfg.OCR.PublicKeyPath, "ocr-public-key", cfg.OCR.PublicKeyPath, "PEM публичного ключа для OCR-сервера")
	fs.StringVar(&cfg.OCR.PrivateKeyPath, "ocr-private-key", cfg.OCR.PrivateKeyPath, "PEM приватного ключа для OCR-сервера")
	fs.StringVar(&cfg.OCR.Model, "ocr-model", cfg.OCR.Model, "модель OpenAI для распознавания")
	fs.StringVar(&cfg.OCR.Prompt, "ocr-prompt", cfg.OCR.Prompt, "инструкция для модели")
	fs.DurationVar(&cfg.OCR.PollInterval, "ocr-poll-interval", cfg.OCR.PollInterval, "период опроса результата")
	fs.DurationVar(&cfg.OCR.MaxWait, "ocr-max-wait", cfg.OCR.MaxWait, "сколько ждать результат одного снимка")
	fs.DurationVar(&cfg.OCR.RequestTimeout, "ocr-request-timeout", cfg.OCR.RequestTimeout, "таймаут одного запроса")
	fs.DurationVar(&cfg.OCR.RetryDelay, "ocr-retry-delay", cfg.OCR.RetryDelay, "пауза перед повтором после ошибки")
	fs.IntVar(&cfg.OCR.MaxConsecutiveErrors, "ocr-max-consecutive-errors", cfg.OCR.MaxConsecutiveErrors, "ошибок подряд до отказа от снимка")
	fs.IntVar(&cfg.OCR.MaxImageWidth, "ocr-max-image-width", cfg.OCR.MaxImageWidth, "максимальная ширина отправляемого снимка")
	// Камера
	fs.StringVar(&cfg.Camera.Backend, "camera-backend", cfg.Camera.Backend, "источник снимков: rpicam|screen")
	fs.StringVar(&cfg.Camera.Command, "camera-command", cfg.Camera.Command, "утилита съёмки")
	fs.IntVar(&cfg.Camera.Quality, "camera-quality", cfg.Camera.Quality, "качество JPEG")
	fs.DurationVar(&cfg.Camera.Timeout, "camera-timeout", cfg.Camera.Timeout, "время автофокуса до снимка")
	fs.StringVar(&cfg.Camera.ImagesDir, "images-dir", cfg.Camera.ImagesDir, "каталог снимков")
	fs.DurationVar(&cfg.Camera.ImagesTTL, "images-ttl", cfg.Camera.ImagesTTL, "через сколько снимок считается старым и удаляется")
	// TTS
	fs.BoolVar(&cfg.TTSEnabled, "tts-enabled", cfg.TTSEnabled, "озвучивать результат OCR через Google TTS")
	fs.StringVar(&cfg.GoogleTTS.CredentialsPath, "google-tts-credentials", cfg.GoogleTTS.CredentialsPath, "путь к service-account.json (также читается из ENV GOOGLE_APPLICATION_CREDENTIALS)")
	fs.StringVar(&cfg.GoogleTTS.Language, "google-tts-language", cfg.GoogleTTS.Language, "язык синтеза, напр. bn-IN")
	fs.StringVar(&cfg.GoogleTTS.Voice, "google-tts-voice", cfg.GoogleTTS.Voice, "имя голоса")
	fs.Float64Var(&cfg.GoogleTTS.SpeakingRate, "google-tts-speaking-rate", cfg.GoogleTTS.SpeakingRate, "скорость речи (1.0 по умолчанию)")
	fs.Float64Var(&cfg.GoogleTTS.Pitch, "google-tts-pitch", cfg.GoogleTTS.Pitch, "тон (полутоны), может быть отрицательным")
	fs.Float64Var(&cfg.GoogleTTS.VolumeGainDb, "google-tts-volume-db", cfg.GoogleTTS.VolumeGainDb, "усиление громкости (дБ)")
	fs.StringVar(&cfg.GoogleTTS.InputType, "google-tts-input-type", cfg.GoogleTTS.InputType, "тип входа: text|ssml")
	// Супервизор
	rolesFlag := strings.Join(cfg.Supervisor.Roles, ";")
	fs.StringVar(&rolesFlag, "roles", rolesFlag, "роли в порядке запуска, разделённые ';'")
	fs.StringVar(&cfg.Supervisor.BinDir, "bin-dir", cfg.Supervisor.BinDir, "каталог бинарей ролей")
	fs.DurationVar(&cfg.Supervisor.StartDelay, "role-start-delay", cfg.Supervisor.StartDelay, "пауза между запусками ролей")
	fs.DurationVar(&cfg.Supervisor.StopTimeout, "role-stop-timeout", cfg.Supervisor.StopTimeout, "ожидание завершения роли после SIGTERM")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Input.Exclude = parseListFlag(excludeFlag, nil)
	cfg.Supervisor.Roles = parseListFlag(rolesFlag, Defaults().Supervisor.Roles)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет перечислимые значения и интервалы.
func (c *Config) Validate() error {
	switch c.Shm.Backend {
	case "posix", "sysv":
	default:
		return fmt.Errorf("%w: SHM_BACKEND=%q (posix|sysv)", ErrInvalid, c.Shm.Backend)
	}
	switch c.OCR.Backend {
	case "http", "openai":
	default:
		return fmt.Errorf("%w: OCR_BACKEND=%q (http|openai)", ErrInvalid, c.OCR.Backend)
	}
	switch c.Camera.Backend {
	case "rpicam", "screen":
	default:
		return fmt.Errorf("%w: CAMERA_BACKEND=%q (rpicam|screen)", ErrInvalid, c.Camera.Backend)
	}
	if c.Registry.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("%w: REGISTRY_POLL_INTERVAL=%s is too short", ErrInvalid, c.Registry.PollInterval)
	}
	if c.Call.Media && c.Call.VideoFPS <= 0 {
		return fmt.Errorf("%w: VIDEO_FPS must be positive", ErrInvalid)
	}
	if c.Input.LongPress <= 0 || c.Input.DoubleTapWindow <= 0 {
		return fmt.Errorf("%w: LONG_PRESS_THRESHOLD and DOUBLE_TAP_WINDOW must be positive", ErrInvalid)
	}
	return nil
}

// PrepareGoogleCredentials убеждается, что задан путь к ключу сервисного
// аккаунта и файл существует. Если ENV пуст, но в конфиге указан путь, ставит ENV.
func (c *Config) PrepareGoogleCredentials() error {
	cred := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	if cred == "" {
		if cp := strings.TrimSpace(c.GoogleTTS.CredentialsPath); cp != "" {
			_ = os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cp)
			cred = cp
		}
	}
	if cred == "" {
		return fmt.Errorf("google tts: переменная окружения GOOGLE_APPLICATION_CREDENTIALS не задана; укажите ENV или флаг -google-tts-credentials")
	}
	if _, err := os.Stat(cred); err != nil {
		return fmt.Errorf("google tts: файл ключа не найден: %s", cred)
	}
	return nil
}

// parseListFlag разбирает значение флага со списком, разделённым ';'
func parseListFlag(v string, def []string) []string {
	// Пустая строка → дефолт
	if v == "" {
		return def
	}
	parts := strings.Split(v, ";")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return def
	}
	return cleaned
}
