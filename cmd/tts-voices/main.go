package main

import (
	"EyeWear/internal/config"
	"EyeWear/internal/service/tts/google"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Небольшая утилита: печатает голоса Google TTS для языка из конфига,
// чтобы выбрать GOOGLE_TTS_VOICE для озвучки OCR.
func main() {
	cfg := config.NewConfig()

	if err := cfg.PrepareGoogleCredentials(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeoutCause(context.Background(), 15*time.Second, errors.New("google tts voices request timeout"))
	defer cancel()

	client := google.New(cfg.GoogleTTS, nil, nil)
	defer client.Close()

	voices, err := client.Voices(ctx, cfg.GoogleTTS.Language)
	if err != nil {
		fmt.Println("не удалось получить список голосов Google TTS:", err)
		os.Exit(1)
	}

	type voice struct {
		Name       string   `json:"name"`
		Languages  []string `json:"languageCodes"`
		Gender     string   `json:"ssmlGender"`
		SampleRate int32    `json:"naturalSampleRateHertz"`
	}
	out := make([]voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, voice{
			Name:       v.GetName(),
			Languages:  v.GetLanguageCodes(),
			Gender:     v.GetSsmlGender().String(),
			SampleRate: v.GetNaturalSampleRateHertz(),
		})
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	if len(out) == 0 {
		fmt.Printf("для языка %q голосов нет\n", cfg.GoogleTTS.Language)
	}
}
