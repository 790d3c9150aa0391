package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned for data that is not a readable RIFF/WAVE stream.
var ErrNotWAV = errors.New("audio: not a WAV stream")

// Info summarizes a WAV stream.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	DataSize   int
	Duration   time.Duration
}

// String renders the format the way the CLI prints it, e.g. "24000 Hz mono 16-bit, 1.25s".
func (i Info) String() string {
	ch := fmt.Sprintf("%d ch", i.Channels)
	switch i.Channels {
	case 1:
		ch = "mono"
	case 2:
		ch = "stereo"
	}
	return fmt.Sprintf("%d Hz %s %d-bit, %.2fs", i.SampleRate, ch, i.BitDepth, i.Duration.Seconds())
}

func newDecoder(data []byte) (*wav.Decoder, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, ErrNotWAV
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotWAV, err)
		}
		return nil, ErrNotWAV
	}
	return d, nil
}

// Inspect reads the header of a WAV stream.
func Inspect(data []byte) (Info, error) {
	d, err := newDecoder(data)
	if err != nil {
		return Info{}, err
	}
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrNotWAV, err)
	}

	info := Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		DataSize:   d.PCMSize,
	}
	if frame := info.Channels * info.BitDepth / 8; frame > 0 {
		info.Frames = info.DataSize / frame
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

// Clip is decoded PCM ready for a playback device: signed 16-bit little-endian
// interleaved samples.
type Clip struct {
	Format goaudio.Format
	PCM    []byte
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	frame := c.Format.NumChannels * 2
	if frame == 0 || c.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.PCM)/frame) * time.Second / time.Duration(c.Format.SampleRate)
}

// Decode converts a WAV stream into a Clip, rescaling 8, 24 and 32-bit
// samples to 16 bits.
func Decode(data []byte) (*Clip, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotWAV, err)
	}
	return &Clip{
		Format: *buf.Format,
		PCM:    toInt16LE(buf),
	}, nil
}

func toInt16LE(buf *goaudio.IntBuffer) []byte {
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}

	out := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit WAV is unsigned.
			s = (s - 128) << 8
		case depth > 16:
			s >>= depth - 16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// ErrFormatMismatch is returned when joining clips of different formats.
var ErrFormatMismatch = errors.New("audio: clips have different formats")

// Join concatenates clips that share a sample rate and channel count.
func Join(clips ...*Clip) (*Clip, error) {
	if len(clips) == 0 {
		return nil, errors.New("audio: nothing to join")
	}
	format := clips[0].Format
	size := 0
	for _, c := range clips {
		if c.Format.SampleRate != format.SampleRate || c.Format.NumChannels != format.NumChannels {
			return nil, fmt.Errorf("%w: %d Hz/%d ch vs %d Hz/%d ch", ErrFormatMismatch,
				format.SampleRate, format.NumChannels, c.Format.SampleRate, c.Format.NumChannels)
		}
		size += len(c.PCM)
	}
	pcm := make([]byte, 0, size)
	for _, c := range clips {
		pcm = append(pcm, c.PCM...)
	}
	return &Clip{Format: format, PCM: pcm}, nil
}

// Encode renders a clip as a 16-bit PCM WAV file.
func Encode(c *Clip) ([]byte, error) {
	samples := make([]int, len(c.PCM)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(c.PCM[i*2:])))
	}

	var out seekBuffer
	enc := wav.NewEncoder(&out, c.Format.SampleRate, 16, c.Format.NumChannels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.Format.NumChannels, SampleRate: c.Format.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	return out.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	b.pos = int(pos)
	return pos, nil
}
