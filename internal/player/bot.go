package player

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/session"
)

var ErrNoWord = errors.New("dictionary has no usable word")

type Dictionary interface {
	Words(ctx context.Context, prefix string) ([]string, error)
}

// Bot plays this peer's turns from the shared dictionary, one entry per
// delay.
type Bot struct {
	dict  Dictionary
	delay time.Duration
	log   *zap.Logger
}

func NewBot(dict Dictionary, delay time.Duration, log *zap.Logger) *Bot {
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{dict: dict, delay: delay, log: log}
}

func (b *Bot) Play(ctx context.Context, ctl *session.Controller) error {
	ticker := time.NewTicker(b.delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		v, err := ctl.View(ctx)
		if err != nil {
			return nil
		}
		if !v.Started || v.CountingDown || v.GameOver || !v.MyTurn || v.Phase == engine.PhaseSettling {
			continue
		}

		slot := Slot(v)
		text := ""
		if slot < len(v.State.Words) {
			text = v.State.Words[slot]
		} else if text, err = b.NextWord(ctx, v.State); err != nil {
			b.log.Warn("no move", zap.Error(err))
			continue
		}

		ctl.Type(slot, text)
		if err := ctl.Submit(ctx, slot, text); err != nil {
			b.log.Debug("entry rejected", zap.Int("slot", slot), zap.String("text", text), zap.Error(err))
		}
	}
}

// NextWord returns the first dictionary word that would pass validation
// against g.
func (b *Bot) NextWord(ctx context.Context, g engine.GameState) (string, error) {
	prefix := ""
	if g.LastWord != "" {
		r, _ := utf8.DecodeLastRuneInString(g.LastWord)
		prefix = string(r)
	}
	words, err := b.dict.Words(ctx, prefix)
	if err != nil {
		return "", err
	}
	for _, w := range words {
		if _, err := engine.Validate(w, g.Words, g.LastWord); err == nil {
			return w, nil
		}
	}
	return "", ErrNoWord
}
