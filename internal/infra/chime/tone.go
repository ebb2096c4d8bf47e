package chime

import (
	"math"
	"time"
)

const (
	DefaultSampleRate = 44100
	DefaultFrequency  = 880.0
	DefaultDuration   = 400 * time.Millisecond
)

type Config struct {
	SampleRate int
	Frequency  float64
	Duration   time.Duration
	Volume     float64
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Frequency <= 0 {
		c.Frequency = DefaultFrequency
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.Volume <= 0 || c.Volume > 1 {
		c.Volume = 0.5
	}
	return c
}

// Tone renders a mono sine burst with a linear fade in and out so playback
// does not click.
func Tone(cfg Config) []float32 {
	cfg = cfg.withDefaults()

	n := int(float64(cfg.SampleRate) * cfg.Duration.Seconds())
	fade := n / 10
	samples := make([]float32, n)

	for i := range samples {
		gain := cfg.Volume
		switch {
		case i < fade:
			gain *= float64(i) / float64(fade)
		case i >= n-fade:
			gain *= float64(n-1-i) / float64(fade)
		}
		samples[i] = float32(gain * math.Sin(2*math.Pi*cfg.Frequency*float64(i)/float64(cfg.SampleRate)))
	}

	return samples
}
