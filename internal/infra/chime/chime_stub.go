//go:build !portaudio
// +build !portaudio

package chime

import (
	"context"
	"fmt"
	"log/slog"
)

// Available reports whether this build can play tones.
const Available = false

// Notifier stub when portaudio is not available
type Notifier struct {
	logger *slog.Logger
}

func NewNotifier(_ Config, logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Notify(_ context.Context, _ string) error {
	return fmt.Errorf("chime not available: rebuild with -tags portaudio")
}
