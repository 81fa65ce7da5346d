// Package audio converts arbitrary uploaded recordings into the canonical
// waveform the rest of the pipeline consumes: mono, fixed sample rate,
// 16-bit PCM WAV, with a deterministic content checksum.
package audio

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/process"
)

// AllowedExtensions lists the upload formats accepted at the ingestion
// boundary. Anything else is rejected before a Job exists.
var AllowedExtensions = map[string]bool{
	".mp3":  true,
	".mp4":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".webm": true,
	".flac": true,
}

// Config holds the normalization policy.
type Config struct {
	// SampleRate is the canonical output rate in Hz.
	SampleRate int `mapstructure:"sample_rate"`
	// MaxSizeBytes rejects uploads larger than this before decoding.
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	// MaxDuration rejects decoded audio longer than this.
	MaxDuration time.Duration `mapstructure:"max_duration"`
	// FFmpegBinary is the decoder used for non-WAV containers.
	FFmpegBinary string `mapstructure:"ffmpeg_binary"`
	// DecodeTimeout bounds one ffmpeg invocation.
	DecodeTimeout time.Duration `mapstructure:"decode_timeout"`
}

// ApplyDefaults fills zero fields with the standard policy.
func (c *Config) ApplyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = 500 << 20
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 4 * time.Hour
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.DecodeTimeout <= 0 {
		c.DecodeTimeout = 5 * time.Minute
	}
}

// Canonical is the normalizer output: the canonical waveform plus the
// checksum downstream stages use as their idempotency key.
type Canonical struct {
	// WAV is the canonical container: mono 16-bit PCM at Config.SampleRate.
	WAV []byte
	// Checksum is the SHA-256 hex digest of WAV.
	Checksum string
	// DurationSeconds is the decoded length.
	DurationSeconds float64
	SampleRate      int
}

// Normalizer validates uploads and produces canonical waveforms.
type Normalizer struct {
	cfg Config
	log *logger.Logger
}

// NewNormalizer creates a Normalizer with the given policy.
func NewNormalizer(cfg Config, log *logger.Logger) *Normalizer {
	cfg.ApplyDefaults()
	return &Normalizer{cfg: cfg, log: log.WithComponent("audio")}
}

// ValidateUpload checks extension and size before any decoding happens.
func (n *Normalizer) ValidateUpload(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !AllowedExtensions[ext] {
		return errors.UnsupportedFormat(ext)
	}
	if size <= 0 {
		return errors.InvalidInput("audio", "empty upload")
	}
	if size > n.cfg.MaxSizeBytes {
		return errors.InvalidInput("audio", "file exceeds size limit").
			WithDetail("size_bytes", size).
			WithDetail("max_bytes", n.cfg.MaxSizeBytes)
	}
	return nil
}

// Normalize converts raw audio to the canonical waveform. Identical input
// bytes always produce an identical waveform and checksum.
func (n *Normalizer) Normalize(ctx context.Context, filename string, data []byte) (*Canonical, error) {
	if err := n.ValidateUpload(filename, int64(len(data))); err != nil {
		return nil, err
	}

	start := time.Now()
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		decoded *pcm
		err     error
	)
	if ext == ".wav" {
		decoded, err = decodeWAV(data)
		if err != nil {
			// A .wav upload may still be a float or ADPCM variant.
			decoded, err = n.decodeWithFFmpeg(ctx, data)
		}
	} else {
		decoded, err = n.decodeWithFFmpeg(ctx, data)
	}
	if err != nil {
		return nil, err
	}

	mono := downmix(decoded)
	mono = resample(mono, decoded.SampleRate, n.cfg.SampleRate)

	duration := float64(len(mono)) / float64(n.cfg.SampleRate)
	if duration <= 0 {
		return nil, errors.InvalidInput("audio", "zero-duration audio")
	}
	if duration > n.cfg.MaxDuration.Seconds() {
		return nil, errors.InvalidInput("audio", "audio exceeds duration limit").
			WithDetail("duration_seconds", duration).
			WithDetail("max_seconds", n.cfg.MaxDuration.Seconds())
	}

	wav := encodeWAV(mono, n.cfg.SampleRate)
	sum := sha256.Sum256(wav)

	n.log.Debug("normalized audio", logger.Fields(
		"duration_seconds", duration,
		"bytes", len(wav),
		"elapsed_ms", time.Since(start).Milliseconds(),
	))

	return &Canonical{
		WAV:             wav,
		Checksum:        hex.EncodeToString(sum[:]),
		DurationSeconds: duration,
		SampleRate:      n.cfg.SampleRate,
	}, nil
}

// decodeWithFFmpeg shells out to ffmpeg to decode a compressed container
// straight to canonical-rate mono PCM WAV on stdout.
func (n *Normalizer) decodeWithFFmpeg(ctx context.Context, data []byte) (*pcm, error) {
	if !process.Installed(n.cfg.FFmpegBinary) {
		return nil, errors.ServiceUnavailable("ffmpeg")
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.DecodeTimeout)
	defer cancel()

	result, err := process.Run(ctx, process.Command{
		Binary: n.cfg.FFmpegBinary,
		Args: []string{
			"-hide_banner", "-loglevel", "error",
			"-i", "pipe:0",
			"-ac", "1",
			"-ar", strconv.Itoa(n.cfg.SampleRate),
			"-f", "wav",
			"pipe:1",
		},
		Stdin: bytes.NewReader(data),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Timeout("audio decode").WithCause(err)
		}
		// Non-zero exit means the input itself is not decodable.
		return nil, errors.InvalidInput("audio", "undecodable audio").
			WithCause(err).
			WithDetail("ffmpeg", result.StderrTail(3))
	}

	decoded, err := decodeWAV(result.Stdout)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return decoded, nil
}
