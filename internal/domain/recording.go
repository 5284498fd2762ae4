package domain

import (
	"time"
)

// RecordingID is a unique identifier for a lecture recording.
type RecordingID string

// String returns the string representation of the RecordingID.
func (id RecordingID) String() string {
	return string(id)
}

// RecordingStatus represents the current processing state of a recording.
type RecordingStatus string

const (
	StatusPending      RecordingStatus = "pending"
	StatusDownloading  RecordingStatus = "downloading"
	StatusMerging      RecordingStatus = "merging"
	StatusSplitting    RecordingStatus = "splitting"
	StatusTranscribing RecordingStatus = "transcribing"
	StatusGenerating   RecordingStatus = "generating_notes"
	StatusCompleted    RecordingStatus = "completed"
	StatusFailed       RecordingStatus = "failed"
)

// SignedURLAuth holds the CDN signed-URL authentication triple. Each field is
// either empty (absent) or an opaque token. Policy and Signature are
// Base64-like and must be fully percent-encoded when placed in a query string.
type SignedURLAuth struct {
	KeyPairID string
	Policy    string
	Signature string
}

// Empty reports whether no auth parameters are set.
func (a SignedURLAuth) Empty() bool {
	return a.KeyPairID == "" && a.Policy == "" && a.Signature == ""
}

// SegmentNaming is the persisted form of a detected segment naming pattern,
// kept on the recording so a resumed run can order stored segments without
// re-probing the CDN.
type SegmentNaming struct {
	Prefix  string
	Padding int
	Suffix  string
}

// Recording represents one lecture download-and-process request.
type Recording struct {
	ID         RecordingID
	Title      string
	BaseURL    string
	StartIndex int
	EndIndex   int
	Auth       SignedURLAuth

	// ClipDuration is the fixed clip length in seconds for resegmentation.
	ClipDuration int

	Status RecordingStatus
	Error  string

	// Pattern is set once acquisition detects the CDN's naming convention.
	Pattern *SegmentNaming

	OutputDir       string
	VideoPath       string
	SegmentCount    int
	ClipCount       int
	DurationSeconds float64
	TranscriptPath  string
	NotesPath       string

	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Terminal reports whether the recording has reached a final state.
func (r *Recording) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
