package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// startupGrace is how long ffmpeg must survive before capture counts as started.
const startupGrace = 250 * time.Millisecond

// FFMPEGSource captures microphone audio through an ffmpeg subprocess.
type FFMPEGSource struct {
	command     string
	inputFormat string
	inputDevice string
	format      Format
}

// NewFFMPEGSource returns a source that runs cfg.Command for each capture.
func NewFFMPEGSource(cfg Config) *FFMPEGSource {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return &FFMPEGSource{
		command:     cfg.Command,
		inputFormat: cfg.InputFormat,
		inputDevice: cfg.InputDevice,
		format:      Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels, BitsPerSample: 16},
	}
}

// Format returns the PCM format ffmpeg is asked to produce.
func (s *FFMPEGSource) Format() Format {
	return s.format
}

// Args returns the ffmpeg arguments used for capture.
func (s *FFMPEGSource) Args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.inputFormat,
		"-i", s.inputDevice,
		"-ac", strconv.Itoa(s.format.Channels),
		"-ar", strconv.Itoa(s.format.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Open starts ffmpeg and returns its stdout. It fails if ffmpeg exits during
// the startup grace period.
func (s *FFMPEGSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.command, s.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimmed(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(startupGrace):
	}

	return &ffmpegCapture{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegCapture struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	closeOnce sync.Once
	closeErr  error
}

func (c *ffmpegCapture) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

// Close interrupts ffmpeg and kills it if it does not exit in time.
func (c *ffmpegCapture) Close() error {
	c.closeOnce.Do(func() {
		if c.process != nil {
			_ = c.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-c.waitErr:
			if ok {
				c.closeErr = normalizeExitErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if c.process != nil {
				_ = c.process.Kill()
			}
			if err, ok := <-c.waitErr; ok {
				c.closeErr = normalizeExitErr(err)
			}
		}

		if err := c.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && c.closeErr == nil {
			c.closeErr = err
		}
		if c.closeErr != nil && c.stderr.Len() > 0 {
			c.closeErr = fmt.Errorf("%w: %s", c.closeErr, trimmed(c.stderr.String()))
		}
	})
	return c.closeErr
}

// normalizeExitErr treats a non-zero exit after an interrupt as a clean stop.
func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
