package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/logging"
)

// MuxerConfig controls how a new soundtrack is written into a video
type MuxerConfig struct {
	FFmpegPath   string        `json:"ffmpeg_path"`
	AudioCodec   string        `json:"audio_codec"`
	AudioBitrate string        `json:"audio_bitrate"`
	TempDir      string        `json:"temp_dir"` // "" uses os.TempDir
	Timeout      time.Duration `json:"timeout"`
}

// DefaultMuxerConfig returns AAC at 192k with a ten minute timeout
func DefaultMuxerConfig() *MuxerConfig {
	return &MuxerConfig{
		FFmpegPath:   "ffmpeg",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		Timeout:      10 * time.Minute,
	}
}

// Muxer swaps the audio track of a video while copying the video stream
type Muxer struct {
	config *MuxerConfig
}

// NewMuxer creates a muxer; a nil config selects DefaultMuxerConfig
func NewMuxer(config *MuxerConfig) *Muxer {
	if config == nil {
		config = DefaultMuxerConfig()
	}
	return &Muxer{config: config}
}

// ReplaceAudio writes outPath with the video stream of videoPath and wf as
// its only audio track. The waveform is staged through a temporary WAV file.
func (m *Muxer) ReplaceAudio(ctx context.Context, videoPath string, wf *audio.Waveform, outPath string) error {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "muxer",
		"video":     videoPath,
		"output":    outPath,
	})

	tmp, err := os.CreateTemp(m.config.TempDir, "sonido-sync-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temp audio file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WriteWAV(tmp, wf); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	args := m.buildArgs(videoPath, tmpPath, outPath)

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	logger.Debug("Running FFmpeg mux command", logging.Fields{
		"command": fmt.Sprintf("%s %s", m.config.FFmpegPath, strings.Join(args, " ")),
	})

	cmd := exec.CommandContext(ctx, m.config.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error(err, "FFmpeg mux failed", logging.Fields{
			"output": string(output),
		})
		return fmt.Errorf("ffmpeg mux failed: %w, output: %s", err, string(output))
	}

	logger.Info("Audio track replaced", logging.Fields{
		"duration": wf.Seconds(),
	})
	return nil
}

// buildArgs maps the first video stream of the video and the first audio
// stream of the staged WAV, copying video and re-encoding audio
func (m *Muxer) buildArgs(videoPath, audioPath, outPath string) []string {
	args := []string{
		"-y", "-v", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", m.config.AudioCodec,
	}
	if m.config.AudioBitrate != "" {
		args = append(args, "-b:a", m.config.AudioBitrate)
	}
	return append(args, outPath)
}
