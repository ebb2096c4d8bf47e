//go:build portaudio
// +build portaudio

package chime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

const Available = true

// Notifier plays a short tone on the default output device for every
// notification. Messages themselves are only logged.
type Notifier struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
}

func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg.withDefaults(), logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(n.cfg.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	n.logger.Debug("playing chime", "message", message)

	samples := Tone(n.cfg)
	for off := 0; off < len(samples); off += framesPerBuffer {
		if err := ctx.Err(); err != nil {
			return err
		}
		clear(buffer)
		copy(buffer, samples[off:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing to stream: %w", err)
		}
	}

	return nil
}
