// Package audio provides PCM capture sources that feed streaming recognition
// engines.
package audio

import (
	"context"
	"errors"
	"io"
)

// ErrUnsupportedFormat is returned when an input is not 16-bit PCM.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format describes raw PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Source opens a stream of signed 16-bit little-endian PCM audio. Each call
// to Open starts a new capture; closing the reader ends it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Format() Format
}

// Config selects and configures a capture source.
type Config struct {
	Source      string // ffmpeg, wav
	WAVPath     string
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
	ChunkSize   int
}

// DefaultConfig returns microphone capture at 16kHz mono.
func DefaultConfig() Config {
	return Config{
		Source:      "ffmpeg",
		Command:     "ffmpeg",
		InputFormat: "pulse",
		InputDevice: "default",
		SampleRate:  16000,
		Channels:    1,
		ChunkSize:   3200,
	}
}

// NewSource builds the source named by cfg.Source.
func NewSource(cfg Config) (Source, error) {
	switch cfg.Source {
	case "wav":
		return NewWAVSource(cfg.WAVPath, cfg.ChunkSize), nil
	case "ffmpeg", "":
		return NewFFMPEGSource(cfg), nil
	default:
		return nil, errors.New("unknown audio source: " + cfg.Source)
	}
}
