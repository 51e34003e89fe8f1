package tts

import "context"

// Speaker озвучивает текст и блокирует до конца воспроизведения или отмены ctx.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}
