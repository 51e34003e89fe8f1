package input

import (
	"EyeWear/internal/mode"
	"time"
)

// Коды linux/input-event-codes.h, которые выдают гарнитуры и кнопки.
const (
	evKey = 0x01

	keyEnter        = 28
	keyNextSong     = 163
	keyPlayPause    = 164
	keyPreviousSong = 165
	keyPlayCD       = 200
	keyPauseCD      = 201
	btn0            = 0x100
	keyVoiceCommand = 0x246
	keyMax          = 0x2ff

	keyStateUp   = 0
	keyStateDown = 1
)

// category — как источник трактует код клавиши.
type category int

const (
	unmapped category = iota
	// fixed — гарнитура сама различает жесты и шлёт разные коды.
	fixed
	// timed — одна кнопка, жест определяется по времени (Timing).
	timed
)

type keyClass struct {
	cat   category
	event mode.Event
}

// keyTable — статическая таблица код -> жест.
var keyTable = map[uint16]keyClass{
	keyPlayPause:    {fixed, mode.SingleTap},
	keyPlayCD:       {fixed, mode.SingleTap},
	keyPauseCD:      {fixed, mode.SingleTap},
	keyNextSong:     {fixed, mode.DoubleTap},
	keyPreviousSong: {fixed, mode.LongPress},
	keyVoiceCommand: {fixed, mode.LongPress},
	keyEnter:        {timed, 0},
	btn0:            {timed, 0},
}

// candidateKeys — коды, по которым при поиске узнаётся подходящее устройство.
var candidateKeys = []uint16{keyPlayPause, keyNextSong, keyPreviousSong, keyPlayCD, btn0}

func classify(code uint16) keyClass {
	return keyTable[code]
}

// keyEvent — событие EV_KEY устройства.
type keyEvent struct {
	code  uint16
	value int32
	at    time.Time
}

// classifier превращает поток keyEvent в жесты.
type classifier struct {
	timing *Timing
}

func newClassifier(cfg Config) *classifier {
	return &classifier{timing: NewTiming(cfg.LongPress, cfg.DoubleTapWindow)}
}

// key обрабатывает одно событие клавиши. Повтор (value=2) игнорируется.
func (c *classifier) key(ev keyEvent) []mode.Event {
	kc := classify(ev.code)
	switch kc.cat {
	case fixed:
		if ev.value == keyStateDown {
			return []mode.Event{kc.event}
		}
	case timed:
		var out []mode.Event
		switch ev.value {
		case keyStateDown:
			if e, ok := c.timing.Down(ev.at); ok {
				out = append(out, e)
			}
		case keyStateUp:
			if e, ok := c.timing.Up(ev.at); ok {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}

// expire отдаёт просроченное одиночное нажатие кнопки с замером времени.
func (c *classifier) expire(now time.Time) (mode.Event, bool) {
	return c.timing.Expire(now)
}

func (c *classifier) deadline() (time.Time, bool) {
	return c.timing.Deadline()
}
