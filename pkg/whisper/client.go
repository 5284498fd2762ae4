// Package whisper transcribes lecture audio through an OpenAI-compatible
// transcription endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxFileSize is the upload limit most transcription endpoints enforce (25MB).
// Larger audio must be chunked before upload.
const MaxFileSize = 25 * 1024 * 1024

// Client converts lecture audio to text.
type Client interface {
	// Transcribe converts one audio stream to text.
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	// TranscribeChunks transcribes split audio and stitches the results back
	// together with adjusted segment timings.
	TranscribeChunks(ctx context.Context, chunkPaths []string, opts TranscriptionOptions) (*TranscriptionResponse, error)
}

// TranscriptionRequest contains the audio data and options for transcription.
type TranscriptionRequest struct {
	AudioData   io.Reader
	Filename    string
	Model       string
	Language    string // optional ISO-639-1 code
	Prompt      string // optional context to guide transcription
	Temperature float64
}

// TranscriptionOptions for the file-based methods.
type TranscriptionOptions struct {
	Model       string
	Language    string
	Prompt      string
	Temperature float64
}

// TranscriptionResponse contains the transcription result.
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language,omitempty"`
	Duration float64                `json:"duration,omitempty"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
}

// TranscriptionSegment is one timed span of the transcription.
type TranscriptionSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// HTTPClient implements Client against an OpenAI-compatible API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config for creating a new transcription client.
type Config struct {
	APIKey  string
	BaseURL string        // defaults to the OpenAI API
	Model   string        // defaults to "whisper-1"
	Timeout time.Duration // defaults to 10 minutes
}

// NewClient creates a new transcription client.
func NewClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}

	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Transcribe sends one audio stream to the API.
func (c *HTTPClient) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, req.AudioData); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if err := writer.WriteField("model", req.Model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if req.Language != "" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if req.Prompt != "" {
		if err := writer.WriteField("prompt", req.Prompt); err != nil {
			return nil, fmt.Errorf("write prompt field: %w", err)
		}
	}
	if req.Temperature > 0 {
		if err := writer.WriteField("temperature", fmt.Sprintf("%.2f", req.Temperature)); err != nil {
			return nil, fmt.Errorf("write temperature field: %w", err)
		}
	}

	// verbose_json carries segment timing, which the notes pipeline uses to
	// anchor references back into the video.
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		// Some deployments ignore response_format and return bare text.
		var simple struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(respBody, &simple); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		result.Text = simple.Text
	}

	return &result, nil
}

// TranscribeFile transcribes an audio file from disk.
func (c *HTTPClient) TranscribeFile(ctx context.Context, audioPath string, opts TranscriptionOptions) (*TranscriptionResponse, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	return c.Transcribe(ctx, TranscriptionRequest{
		AudioData:   file,
		Filename:    filepath.Base(audioPath),
		Model:       opts.Model,
		Language:    opts.Language,
		Prompt:      opts.Prompt,
		Temperature: opts.Temperature,
	})
}

// TranscribeChunks transcribes split audio in order and stitches the results.
// A failing chunk fails the whole call; silently dropping one would yield a
// transcript with a hole in the middle of the lecture.
func (c *HTTPClient) TranscribeChunks(ctx context.Context, chunkPaths []string, opts TranscriptionOptions) (*TranscriptionResponse, error) {
	if len(chunkPaths) == 0 {
		return nil, fmt.Errorf("no chunks provided")
	}
	if len(chunkPaths) == 1 {
		return c.TranscribeFile(ctx, chunkPaths[0], opts)
	}

	var allText strings.Builder
	var allSegments []TranscriptionSegment
	var totalDuration float64
	var offset float64

	for i, chunkPath := range chunkPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.TranscribeFile(ctx, chunkPath, opts)
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %d/%d (%s): %w", i+1, len(chunkPaths), chunkPath, err)
		}

		if allText.Len() > 0 {
			allText.WriteString(" ")
		}
		allText.WriteString(strings.TrimSpace(result.Text))

		// Shift segment timings into the whole-lecture timeline.
		for _, seg := range result.Segments {
			seg.Start += offset
			seg.End += offset
			seg.ID = len(allSegments)
			allSegments = append(allSegments, seg)
		}

		switch {
		case result.Duration > 0:
			offset += result.Duration
			totalDuration += result.Duration
		case len(result.Segments) > 0:
			last := result.Segments[len(result.Segments)-1]
			offset += last.End
			totalDuration += last.End
		default:
			// No timing information at all; assume the chunker's default.
			offset += 300
			totalDuration += 300
		}

		// Feed the tail of this chunk as prompt for the next so sentence
		// boundaries survive the cut.
		if i < len(chunkPaths)-1 && result.Text != "" {
			words := strings.Fields(result.Text)
			if len(words) > 20 {
				opts.Prompt = strings.Join(words[len(words)-20:], " ")
			} else {
				opts.Prompt = result.Text
			}
		}
	}

	return &TranscriptionResponse{
		Text:     allText.String(),
		Duration: totalDuration,
		Segments: allSegments,
	}, nil
}
