// Package ollama talks to a local Ollama server for notes generation. The
// transcript never leaves the machine, which matters for recorded lectures
// that students are not allowed to redistribute.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iconidentify/lectura/internal/config"
)

// Client generates study material from lecture transcripts.
type Client interface {
	// GenerateNotes turns a transcript into notes in the requested style.
	GenerateNotes(ctx context.Context, req NotesRequest) (*NotesResponse, error)
}

// NotesRequest contains the transcript and generation options.
type NotesRequest struct {
	Transcript string
	Title      string // lecture title, used to anchor the notes
	Style      string // one of the Style* constants; default lecture_notes
}

// NotesResponse contains the generated notes.
type NotesResponse struct {
	Notes     string // markdown
	Style     string
	WordCount int
}

// Supported note styles.
const (
	StyleLectureNotes = "lecture_notes"
	StyleSummary      = "summary"
	StyleQACards      = "qa_cards"
	StyleKeyPoints    = "key_points"
)

var stylePrompts = map[string]string{
	StyleLectureNotes: `You are an expert note-taker. Turn the lecture transcript into structured study notes.

Requirements:
- Use markdown: ## for each major topic, bullet points underneath
- Preserve every definition, formula, and worked example from the transcript
- Keep the lecturer's terminology; do not paraphrase technical terms
- Include a short "Terms introduced" section at the end
- Never mention the transcript, the recording, or that these notes are generated

Return ONLY the markdown notes, no preamble, no code fences.`,

	StyleSummary: `You are an expert summarizer. Write a concise prose summary of the lecture transcript.

Requirements:
- 3-6 paragraphs covering the main arguments in order
- Neutral and factual; no commentary on lecture quality
- Never mention the transcript or the recording

Return ONLY the summary text, no preamble, no code fences.`,

	StyleQACards: `You are creating flashcards from a lecture transcript.

Requirements:
- Produce 10-25 question/answer pairs covering the substantive material
- Format each card as:
  **Q:** question
  **A:** answer
- Questions must be answerable from the transcript alone
- Never mention the transcript or the recording

Return ONLY the cards in markdown, no preamble, no code fences.`,

	StyleKeyPoints: `You are extracting key points from a lecture transcript.

Requirements:
- A flat markdown bullet list of the 10-20 most important points, in lecture order
- One sentence per point, concrete and specific
- Never mention the transcript or the recording

Return ONLY the bullet list, no preamble, no code fences.`,
}

// HTTPClient implements Client against the Ollama chat API.
type HTTPClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a new Ollama client.
func NewClient(cfg config.NotesConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// chatRequest is the request body for the Ollama chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the non-streaming response from the Ollama chat API.
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// GenerateNotes turns a transcript into notes in the requested style.
func (c *HTTPClient) GenerateNotes(ctx context.Context, req NotesRequest) (*NotesResponse, error) {
	if req.Transcript == "" {
		return nil, fmt.Errorf("transcript is required for notes generation")
	}

	style := req.Style
	if style == "" {
		style = StyleLectureNotes
	}
	systemPrompt, ok := stylePrompts[style]
	if !ok {
		return nil, fmt.Errorf("unknown notes style %q", style)
	}

	userPrompt := req.Transcript
	if req.Title != "" {
		userPrompt = fmt.Sprintf("Lecture: %s\n\n%s", req.Title, req.Transcript)
	}

	chatReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != "" {
		return nil, fmt.Errorf("API error: %s", chatResp.Error)
	}

	notes := stripCodeFence(chatResp.Message.Content)
	if notes == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	return &NotesResponse{
		Notes:     notes,
		Style:     style,
		WordCount: len(strings.Fields(notes)),
	}, nil
}

// stripCodeFence removes a wrapping markdown code block, which smaller models
// sometimes add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```md")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
