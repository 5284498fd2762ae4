package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Processor drives ffmpeg/ffprobe for segment merging, clip extraction and
// audio preparation. It satisfies the media engine interface used by the
// reconstruction pipeline.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewProcessor locates ffmpeg and ffprobe in PATH.
func NewProcessor() (*Processor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// Concat merges transport stream segments into one MP4 using the concat
// demuxer. Streams are copied, not re-encoded; the aac_adtstoasc bitstream
// filter rewraps ADTS audio for the MP4 container.
func (p *Processor) Concat(ctx context.Context, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concat")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	listPath, err := p.writeConcatList(segmentPaths, outputPath)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-y",
		outputPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// writeConcatList emits the concat demuxer file list next to the output so it
// stays on the same filesystem. Single quotes in paths are escaped per the
// demuxer's quoting rules.
func (p *Processor) writeConcatList(segmentPaths []string, outputPath string) (string, error) {
	var b strings.Builder
	for _, path := range segmentPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve segment path: %w", err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	listPath := outputPath + ".segments.txt"
	if err := os.WriteFile(listPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return listPath, nil
}

// Duration probes a media file's duration in seconds via ffprobe.
func (p *Processor) Duration(ctx context.Context, mediaPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		mediaPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if parsed.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", mediaPath)
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
	}
	return duration, nil
}

// Clip re-encodes one window of the input. Copying streams here can start a
// clip mid-GOP and produce files that play black until the next keyframe, so
// clips are always re-encoded.
func (p *Processor) Clip(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-ss", formatSeconds(startSeconds),
		"-i", inputPath,
		"-t", formatSeconds(durationSeconds),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-y",
		outputPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg clip: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// lastLine extracts the final non-empty stderr line, which is where ffmpeg
// puts the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}

// ExtractAudioConfig configures audio extraction for transcription.
type ExtractAudioConfig struct {
	OutputPath string // Path for output audio file
	Format     string // Output format: "mp3", "wav", "m4a" (default: "mp3")
	SampleRate int    // Sample rate in Hz (default: 16000 for speech)
	Channels   int    // Number of channels, 1=mono (default: 1)
	Bitrate    string // Audio bitrate (default: "64k")
}

// ExtractAudio pulls the audio track out of a video file, downsampled for
// speech recognition. Returns the output path and its duration in seconds.
func (p *Processor) ExtractAudio(ctx context.Context, videoPath string, cfg ExtractAudioConfig) (string, float64, error) {
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "64k"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-i", videoPath,
		"-vn",
		"-acodec", audioCodec(cfg.Format),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-b:a", cfg.Bitrate,
		"-y",
		cfg.OutputPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("extract audio: %w: %s", err, lastLine(stderr.String()))
	}

	// Probe the output rather than the input; input container duration can
	// be missing on freshly merged streams.
	duration, err := p.Duration(ctx, cfg.OutputPath)
	if err != nil {
		duration = 0
	}
	return cfg.OutputPath, duration, nil
}

func audioCodec(format string) string {
	switch format {
	case "mp3":
		return "libmp3lame"
	case "wav":
		return "pcm_s16le"
	case "m4a":
		return "aac"
	case "ogg":
		return "libvorbis"
	default:
		return "libmp3lame"
	}
}

// ChunkAudioConfig configures audio chunking for transcription APIs with
// upload size limits.
type ChunkAudioConfig struct {
	ChunkDurationSec int    // Duration of each chunk in seconds (default: 300)
	OutputDir        string // Directory to save chunks
	Format           string // Output format (default: "mp3")
}

// ChunkAudio splits an audio file into fixed-duration chunks. Files already
// under 20MB are returned as-is. Failed chunks are skipped.
func (p *Processor) ChunkAudio(ctx context.Context, audioPath string, cfg ChunkAudioConfig) ([]string, error) {
	if cfg.ChunkDurationSec <= 0 {
		cfg.ChunkDurationSec = 300
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}

	stat, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if stat.Size() < 20*1024*1024 {
		return []string{audioPath}, nil
	}

	duration, err := p.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("get audio duration: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var chunks []string
	numChunks := int(duration/float64(cfg.ChunkDurationSec)) + 1

	for i := 0; i < numChunks; i++ {
		if err := ctx.Err(); err != nil {
			return chunks, err
		}

		startTime := i * cfg.ChunkDurationSec
		outputPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("chunk_%03d.%s", i, cfg.Format))

		// Always re-encode. Stream copy can cut mid-frame and produce
		// chunks that decode as silence.
		cmd := exec.CommandContext(ctx, p.ffmpegPath,
			"-ss", strconv.Itoa(startTime),
			"-i", audioPath,
			"-t", strconv.Itoa(cfg.ChunkDurationSec),
			"-acodec", audioCodec(cfg.Format),
			"-b:a", "64k",
			"-y",
			outputPath,
		)
		if err := cmd.Run(); err != nil {
			continue
		}

		if stat, err := os.Stat(outputPath); err == nil && stat.Size() > 1000 {
			chunks = append(chunks, outputPath)
		}
	}

	return chunks, nil
}

// IsAvailable checks if ffmpeg and ffprobe are installed.
func IsAvailable() bool {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return false
	}
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// Version returns the installed ffmpeg version line.
func Version() (string, error) {
	output, err := exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		return "", err
	}
	if lines := strings.Split(string(output), "\n"); len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}
