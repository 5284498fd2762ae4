package media

import "context"

// Engine is the external media toolchain the reconstruction pipeline drives.
// The production implementation shells out to ffmpeg/ffprobe; tests substitute
// a fake so pipeline logic runs without the binaries installed.
type Engine interface {
	// Concat merges transport stream segments, in the given order, into a
	// single MP4 container at outputPath without re-encoding video.
	Concat(ctx context.Context, segmentPaths []string, outputPath string) error

	// Duration probes a media file's duration in seconds.
	Duration(ctx context.Context, mediaPath string) (float64, error)

	// Clip re-encodes the window [startSeconds, startSeconds+durationSeconds)
	// of inputPath into outputPath. Windows extending past the end of the
	// input are truncated by the toolchain, not rejected.
	Clip(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error
}
