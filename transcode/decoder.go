package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"` // 0 keeps the native rate
	TargetChannels   int           `json:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path"`  // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"` // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`      // Timeout for ffmpeg operations
	// Normalization options
	EnableNormalization bool    `json:"enable_normalization"`
	NormalizationMethod string  `json:"normalization_method"` // "loudnorm", "dynaudnorm"
	TargetLUFS          float64 `json:"target_lufs"`
	TargetPeak          float64 `json:"target_peak"`
	LoudnessRange       float64 `json:"loudness_range"`
}

// DefaultDecoderConfig returns default decoder configuration.
// Audio is decoded to mono at its native sample rate without normalization,
// so the retimed output keeps the source loudness.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate:    0,
		TargetChannels:      1,
		MaxDuration:         0, // No limit
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		Timeout:             2 * time.Minute,
		EnableNormalization: false,
		NormalizationMethod: "dynaudnorm",
		TargetLUFS:          -20.0,
		TargetPeak:          -3.0,
		LoudnessRange:       5.0,
	}
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// Decoder turns media files (audio or video) into waveforms using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// Config returns the decoder configuration
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// Decode probes the first audio stream of path and decodes it into a
// waveform. Video containers are accepted; only the audio is read.
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Waveform, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "Decode",
		"filename":  path,
	})

	logger.Debug("Starting audio file decode")

	metadata, err := d.probe(ctx, path, nil)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	args := append([]string{"-v", "error", "-i", path}, d.buildFFmpegArgs(metadata)...)
	return d.run(ctx, args, nil, metadata, logger)
}

// DecodeReader decodes audio piped through stdin
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader) (*audio.Waveform, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeReader",
	})

	data, err := io.ReadAll(reader)
	if err != nil {
		logger.Error(err, "Failed to read data from reader")
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data")
	}

	metadata, err := d.probe(ctx, "pipe:0", data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	args := append([]string{"-v", "error", "-i", "pipe:0"}, d.buildFFmpegArgs(metadata)...)
	return d.run(ctx, args, data, metadata, logger)
}

// probe uses ffprobe to read the properties of the first audio stream of
// input, fed from stdin when input is "pipe:0"
func (d *Decoder) probe(ctx context.Context, input string, stdin []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0", // First audio stream only
		input,
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.config.FFprobePath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %q", stream.SampleRate)
	}

	// Duration and bitrate are informational; containers often omit them
	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}
	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// outputRate resolves the decode sample rate for a probed stream
func (d *Decoder) outputRate(metadata *AudioMetadata) int {
	if d.config.TargetSampleRate > 0 {
		return d.config.TargetSampleRate
	}
	return metadata.SampleRate
}

// buildFFmpegArgs returns the output half of the ffmpeg command line:
// first audio stream, raw float64 little-endian on stdout.
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{"-map", "0:a:0", "-vn"}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}

	args = append(args,
		"-f", "f64le",
		"-ac", strconv.Itoa(d.config.TargetChannels),
		"-ar", strconv.Itoa(d.outputRate(metadata)),
	)

	if d.config.EnableNormalization {
		if filter := d.buildNormalizationFilter(); filter != "" {
			args = append(args, "-af", filter)
		}
	}

	return append(args, "pipe:1")
}

// buildNormalizationFilter returns the ffmpeg loudness filter for the
// configured method, or "" for an unknown method.
func (d *Decoder) buildNormalizationFilter() string {
	switch d.config.NormalizationMethod {
	case "loudnorm":
		return fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f",
			d.config.TargetLUFS, d.config.TargetPeak, d.config.LoudnessRange)
	case "dynaudnorm":
		return "dynaudnorm=f=150:g=15:p=0.95"
	default:
		return ""
	}
}

func (d *Decoder) run(ctx context.Context, args []string, stdin []byte, metadata *AudioMetadata, logger logging.Logger) (*audio.Waveform, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	logger.Debug("Running FFmpeg command", logging.Fields{
		"command": fmt.Sprintf("%s %s", d.config.FFmpegPath, strings.Join(args, " ")),
	})

	startTime := time.Now()
	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			logger.Error(err, "FFmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	channels := d.config.TargetChannels
	samples = samples[:len(samples)-len(samples)%channels]

	wf, err := audio.NewWaveform(samples, d.outputRate(metadata), channels)
	if err != nil {
		return nil, fmt.Errorf("decoded audio rejected: %w", err)
	}

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_bytes": len(output),
		"samples":      len(samples),
		"duration":     wf.Seconds(),
		"decode_time":  time.Since(startTime).Seconds(),
	})

	return wf, nil
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// bytesToFloat64 reinterprets f64le bytes as samples, dropping a trailing
// partial sample
func bytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", d.config.TargetSampleRate)
	}

	if d.config.TargetChannels <= 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 1 and 8: %d", d.config.TargetChannels)
	}

	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}

	return nil
}

// CheckAvailability reports whether the configured ffmpeg and ffprobe
// binaries can be found
func (d *Decoder) CheckAvailability() error {
	if _, err := exec.LookPath(d.config.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if _, err := exec.LookPath(d.config.FFprobePath); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}
