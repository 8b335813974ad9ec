package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// wavHeaderSize is the size of a canonical PCM WAV header.
const wavHeaderSize = 44

// WAVSource replays a PCM WAV file at real-time pace, as if it were a
// microphone.
type WAVSource struct {
	path      string
	chunkSize int
	format    Format
}

// NewWAVSource returns a source reading path in chunkSize byte chunks.
func NewWAVSource(path string, chunkSize int) *WAVSource {
	if chunkSize <= 0 {
		chunkSize = 3200
	}
	return &WAVSource{path: path, chunkSize: chunkSize}
}

// Format returns the format read from the file header, once opened.
func (s *WAVSource) Format() Format {
	return s.format
}

// Open validates the WAV header and returns a reader over the PCM payload.
func (s *WAVSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	format, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.format = format
	return newPacedReader(ctx, f, format, s.chunkSize), nil
}

// ReadWAVHeader reads and validates a 44-byte PCM WAV header.
func ReadWAVHeader(r io.Reader) (Format, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Format{}, fmt.Errorf("failed to read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, fmt.Errorf("%w: not a wav file", ErrUnsupportedFormat)
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	format := Format{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	if audioFormat != 1 {
		return Format{}, fmt.Errorf("%w: wav format %d is not PCM", ErrUnsupportedFormat, audioFormat)
	}
	if format.BitsPerSample != 16 {
		return Format{}, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, format.BitsPerSample)
	}
	return format, nil
}

// pacedReader returns at most one chunk per chunk duration.
type pacedReader struct {
	ctx      context.Context
	rc       io.ReadCloser
	chunk    int
	interval time.Duration
	next     time.Time
}

func newPacedReader(ctx context.Context, rc io.ReadCloser, format Format, chunk int) *pacedReader {
	var interval time.Duration
	if bps := format.BytesPerSecond(); bps > 0 {
		interval = time.Duration(chunk) * time.Second / time.Duration(bps)
	}
	return &pacedReader{ctx: ctx, rc: rc, chunk: chunk, interval: interval}
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if wait := time.Until(p.next); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-p.ctx.Done():
			t.Stop()
			return 0, p.ctx.Err()
		case <-t.C:
		}
	} else if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	if len(b) > p.chunk {
		b = b[:p.chunk]
	}
	n, err := p.rc.Read(b)
	p.next = time.Now().Add(p.interval)
	return n, err
}

func (p *pacedReader) Close() error {
	return p.rc.Close()
}
