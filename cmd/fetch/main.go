// Command fetch is a one-shot acquisition tool: it downloads a segment range,
// merges it, and optionally splits it into clips, without running the server.
// Re-running against the same output directory resumes from cached segments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/hls"
	"github.com/iconidentify/lectura/internal/media"
	"github.com/iconidentify/lectura/pkg/ffmpeg"
)

func main() {
	var (
		baseURL      = flag.String("url", "", "Segment base URL (required)")
		start        = flag.Int("start", 0, "First segment index")
		end          = flag.Int("end", 0, "Last segment index, inclusive (required)")
		outputDir    = flag.String("out", ".", "Output directory")
		keyPairID    = flag.String("key-pair-id", "", "CDN Key-Pair-Id")
		policy       = flag.String("policy", "", "CDN Policy token")
		signature    = flag.String("signature", "", "CDN Signature token")
		clipDuration = flag.Float64("clip-seconds", 0, "Split the merged video into clips of this length (0 = no split)")
		maxFailures  = flag.Int("max-failures", 10, "Consecutive failure budget")
		verbose      = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *baseURL == "" || *end < *start {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *baseURL, *start, *end, *outputDir, domain.SignedURLAuth{
		KeyPairID: *keyPairID,
		Policy:    *policy,
		Signature: *signature,
	}, *clipDuration, *maxFailures); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, baseURL string, start, end int, outputDir string, auth domain.SignedURLAuth, clipDuration float64, maxFailures int) error {
	store, err := hls.NewStore(outputDir)
	if err != nil {
		return err
	}

	total := end - start + 1
	started := time.Now()
	progress := func(current, tot int, message string) {
		fmt.Fprintf(os.Stderr, "\r[%d/%d] %-50s", current, tot, message)
	}

	session := hls.NewSession(hls.SessionConfig{
		BaseURL:                baseURL,
		StartIndex:             start,
		EndIndex:               end,
		Auth:                   auth,
		MaxConsecutiveFailures: maxFailures,
	}, store, progress, logger)

	result, err := session.Run(ctx)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("downloaded %d/%d segments in %s\n", result.SuccessCount, total, time.Since(started).Round(time.Second))

	pattern := hls.DefaultPattern()
	if result.Pattern != nil {
		pattern = *result.Pattern
	}
	segments, err := store.ListOrdered(pattern)
	if err != nil {
		return err
	}

	processor, err := ffmpeg.NewProcessor()
	if err != nil {
		return err
	}

	videoPath := filepath.Join(outputDir, "lecture.mp4")
	merge, err := media.NewReconstructor(processor, logger).Reconstruct(ctx, segments, videoPath)
	if err != nil {
		return err
	}
	fmt.Printf("merged %d segments into %s (%.0fs)\n", merge.SegmentCount, merge.OutputPath, merge.DurationSeconds)

	if clipDuration > 0 {
		clips, err := media.NewResegmenter(processor, logger).Split(ctx, videoPath, outputDir, "clip", clipDuration)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d clips to %s\n", len(clips), filepath.Join(outputDir, "clips"))
	}

	return nil
}
