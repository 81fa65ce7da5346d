package audio

import (
	"context"
	"math"
	"testing"
	"time"

	apperrors "github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/logger"
)

// sineWAV builds a PCM16 WAV of the given shape for decode tests.
func sineWAV(t *testing.T, rate, channels int, dur time.Duration) []byte {
	t.Helper()
	frames := int(float64(rate) * dur.Seconds())
	samples := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	return encodeMultiWAV(samples, rate, channels)
}

// encodeMultiWAV is a test-only multi-channel variant of encodeWAV.
func encodeMultiWAV(samples []int16, rate, channels int) []byte {
	mono := encodeWAV(samples, rate)
	if channels == 1 {
		return mono
	}
	// Patch the channel count, byte rate, and block align in the header.
	out := make([]byte, len(mono))
	copy(out, mono)
	out[22] = byte(channels)
	byteRate := rate * channels * 2
	out[28] = byte(byteRate)
	out[29] = byte(byteRate >> 8)
	out[30] = byte(byteRate >> 16)
	out[31] = byte(byteRate >> 24)
	out[32] = byte(channels * 2)
	return out
}

func newTestNormalizer(cfg Config) *Normalizer {
	return NewNormalizer(cfg, logger.Nop())
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newTestNormalizer(Config{})
	wav := sineWAV(t, 16000, 1, 2*time.Second)

	a, err := n.Normalize(context.Background(), "clip.wav", wav)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := n.Normalize(context.Background(), "clip.wav", wav)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.Checksum != b.Checksum {
		t.Errorf("checksums differ: %s vs %s", a.Checksum, b.Checksum)
	}
	if len(a.WAV) != len(b.WAV) {
		t.Errorf("waveform lengths differ")
	}
}

func TestNormalizeDownmixesStereo(t *testing.T) {
	n := newTestNormalizer(Config{})
	wav := sineWAV(t, 16000, 2, time.Second)

	out, err := n.Normalize(context.Background(), "stereo.wav", wav)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	decoded, err := decodeWAV(out.WAV)
	if err != nil {
		t.Fatalf("decode canonical: %v", err)
	}
	if decoded.Channels != 1 {
		t.Errorf("channels = %d, want 1", decoded.Channels)
	}
	if decoded.SampleRate != 16000 {
		t.Errorf("rate = %d, want 16000", decoded.SampleRate)
	}
}

func TestNormalizeResamples(t *testing.T) {
	n := newTestNormalizer(Config{})
	wav := sineWAV(t, 44100, 1, time.Second)

	out, err := n.Normalize(context.Background(), "hi-rate.wav", wav)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Errorf("rate = %d", out.SampleRate)
	}
	if math.Abs(out.DurationSeconds-1.0) > 0.01 {
		t.Errorf("duration = %f, want ~1.0", out.DurationSeconds)
	}
}

func TestNormalizeRejectsUnsupportedExtension(t *testing.T) {
	n := newTestNormalizer(Config{})
	_, err := n.Normalize(context.Background(), "notes.txt", []byte("hello"))

	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Retryable {
		t.Error("validation errors must not be retryable")
	}
}

func TestNormalizeRejectsOversize(t *testing.T) {
	n := newTestNormalizer(Config{MaxSizeBytes: 100})
	wav := sineWAV(t, 16000, 1, time.Second)

	_, err := n.Normalize(context.Background(), "big.wav", wav)
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Retryable {
		t.Fatalf("expected non-retryable validation error, got %v", err)
	}
}

func TestNormalizeRejectsOverDuration(t *testing.T) {
	n := newTestNormalizer(Config{MaxDuration: time.Second})
	wav := sineWAV(t, 16000, 1, 3*time.Second)

	_, err := n.Normalize(context.Background(), "long.wav", wav)
	if err == nil {
		t.Fatal("expected duration rejection")
	}
}

func TestNormalizeRejectsGarbageWAV(t *testing.T) {
	n := newTestNormalizer(Config{FFmpegBinary: "definitely-not-installed-xyz"})
	_, err := n.Normalize(context.Background(), "bad.wav", []byte("not a wav file at all"))
	if err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestValidateUploadEmptyFile(t *testing.T) {
	n := newTestNormalizer(Config{})
	if err := n.ValidateUpload("a.mp3", 0); err == nil {
		t.Error("empty upload should be rejected")
	}
	if err := n.ValidateUpload("a.mp3", 1024); err != nil {
		t.Errorf("valid upload rejected: %v", err)
	}
}

func TestResampleDeterministic(t *testing.T) {
	in := make([]int16, 4410)
	for i := range in {
		in[i] = int16(i % 100)
	}
	a := resample(in, 44100, 16000)
	b := resample(in, 44100, 16000)
	if len(a) != len(b) {
		t.Fatal("lengths differ")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs", i)
		}
	}
}
