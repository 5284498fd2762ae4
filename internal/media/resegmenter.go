package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/iconidentify/lectura/internal/domain"
)

// Clip is one fixed-duration slice of a reconstructed video.
type Clip struct {
	Index           int // 1-based position within the video
	Path            string
	StartSeconds    float64
	DurationSeconds float64
}

// Resegmenter cuts a reconstructed video into uniform clips for distribution.
type Resegmenter struct {
	engine Engine
	logger *slog.Logger
}

func NewResegmenter(engine Engine, logger *slog.Logger) *Resegmenter {
	return &Resegmenter{engine: engine, logger: logger}
}

// Split slices videoPath into consecutive clips of clipDuration seconds,
// written to {outputDir}/clips/{prefix}_{NNN}.mp4 with 1-based zero-padded
// numbering. The clip count is floor(duration/clipDuration)+1, so the final
// clip carries the remainder. Individual clip failures are skipped; the
// operation fails only when the duration cannot be probed or no clip at all
// could be produced.
func (r *Resegmenter) Split(ctx context.Context, videoPath, outputDir, prefix string, clipDuration float64) ([]Clip, error) {
	if clipDuration <= 0 {
		return nil, fmt.Errorf("clip duration must be positive, got %v", clipDuration)
	}

	duration, err := r.engine.Duration(ctx, videoPath)
	if err != nil || duration <= 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrDurationUnavailable
	}

	clipsDir := filepath.Join(outputDir, "clips")
	if err := os.MkdirAll(clipsDir, 0755); err != nil {
		return nil, fmt.Errorf("create clips dir: %w", err)
	}

	clipCount := int(duration/clipDuration) + 1

	r.logger.Info("splitting video",
		"video", videoPath,
		"duration_seconds", duration,
		"clip_seconds", clipDuration,
		"clips", clipCount,
	)

	var clips []Clip
	for i := 1; i <= clipCount; i++ {
		if err := ctx.Err(); err != nil {
			return clips, err
		}

		start := float64(i-1) * clipDuration
		outputPath := filepath.Join(clipsDir, fmt.Sprintf("%s_%03d.mp4", prefix, i))

		if err := r.engine.Clip(ctx, videoPath, outputPath, start, clipDuration); err != nil {
			if ctx.Err() != nil {
				return clips, ctx.Err()
			}
			r.logger.Warn("clip failed, skipping", "clip", i, "error", err)
			continue
		}

		clips = append(clips, Clip{
			Index:           i,
			Path:            outputPath,
			StartSeconds:    start,
			DurationSeconds: clipDuration,
		})
	}

	if len(clips) == 0 {
		return nil, domain.ErrClipFailed
	}
	return clips, nil
}
