package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/hls"
)

// MergeResult summarizes a completed reconstruction.
type MergeResult struct {
	OutputPath      string
	SegmentCount    int
	TotalBytes      int64
	DurationSeconds float64
}

// Reconstructor merges acquired segments into a single playable video.
type Reconstructor struct {
	engine Engine
	logger *slog.Logger
}

func NewReconstructor(engine Engine, logger *slog.Logger) *Reconstructor {
	return &Reconstructor{engine: engine, logger: logger}
}

// Reconstruct concatenates the segments, already sorted by numeric index, into
// outputPath. The engine is never invoked for an empty segment list. Gaps in
// the index sequence are merged as-is; a missing middle segment shows up as a
// skip in the video, not an error.
func (r *Reconstructor) Reconstruct(ctx context.Context, segments []hls.StoredSegment, outputPath string) (*MergeResult, error) {
	if len(segments) == 0 {
		return nil, domain.ErrNoSegments
	}

	paths := make([]string, len(segments))
	var totalBytes int64
	for i, seg := range segments {
		paths[i] = seg.Path
		totalBytes += seg.SizeBytes
	}

	r.logger.Info("merging segments",
		"segments", len(segments),
		"total_bytes", totalBytes,
		"output", outputPath,
	)

	if err := r.engine.Concat(ctx, paths, outputPath); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMergeFailed, err)
	}

	result := &MergeResult{
		OutputPath:   outputPath,
		SegmentCount: len(segments),
		TotalBytes:   totalBytes,
	}

	// Duration is advisory here; the resegmenter probes again before
	// splitting and fails hard there if it is genuinely unavailable.
	if dur, err := r.engine.Duration(ctx, outputPath); err == nil {
		result.DurationSeconds = dur
	} else {
		r.logger.Warn("merged video duration unavailable", "error", err)
	}

	return result, nil
}
