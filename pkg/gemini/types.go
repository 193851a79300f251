// Package gemini provides a wire-level client for the Gemini-style media
// analysis API: resumable file uploads, processing polls, and streaming
// content generation. All network steps are guarded by the retry executor.
package gemini

// FileState represents the server-side processing state of an uploaded file.
type FileState string

const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
)

// File is the remote file resource returned by the upload and files endpoints.
// URI is the durable reference embedded in generation requests once the file
// reaches ACTIVE.
type File struct {
	Name        string     `json:"name"` // e.g. "files/abc-123"
	URI         string     `json:"uri,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	MIMEType    string     `json:"mimeType,omitempty"`
	SizeBytes   string     `json:"sizeBytes,omitempty"`
	State       FileState  `json:"state,omitempty"`
	Error       *FileError `json:"error,omitempty"`
}

// FileError carries the server's reason for a failed processing state.
type FileError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// fileEnvelope wraps the file resource in upload responses.
type fileEnvelope struct {
	File File `json:"file"`
}

// Content is one turn of conversation material sent to or received from the
// model. Role is "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a piece of content: text or a reference to an uploaded file.
type Part struct {
	Text     string    `json:"text,omitempty"`
	FileData *FileData `json:"fileData,omitempty"`
}

// FileData references an uploaded file by its durable URI.
type FileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

// GenerationConfig carries the recognized generation parameters:
// temperature (consistency vs. creativity), maxOutputTokens (truncation
// ceiling), and mediaResolution (quality/latency trade-off).
type GenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens int32    `json:"maxOutputTokens,omitempty"`
	MediaResolution string   `json:"mediaResolution,omitempty"`
}

// GenerateRequest is the body of a streaming generation call.
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// generateResponse is one decoded SSE payload of a streaming generation call.
type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount int `json:"candidatesTokenCount,omitempty"`
}

// textDelta extracts the concatenated text parts of the first candidate.
func (r *generateResponse) textDelta() string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, p := range r.Candidates[0].Content.Parts {
		out += p.Text
	}
	return out
}

// finishReason returns the first candidate's finish reason, empty while the
// stream is still producing.
func (r *generateResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

// StreamChunk is one incremental piece of a streamed analysis response.
// SequenceIndex values are contiguous starting at 0; the concatenation of all
// TextDelta fields in sequence order is the full response text. Final marks
// the terminal "complete" signal; Err terminates the sequence with a failure.
type StreamChunk struct {
	Err           error
	TextDelta     string
	SequenceIndex int
	Final         bool
}

// UploadState tracks the resumable upload state machine.
type UploadState int8

const (
	UploadStateInitiated UploadState = iota
	UploadStateUploading
	UploadStateFinalizing
	UploadStateProcessing
	UploadStateReady
	UploadStateFailed
)

// String returns the string representation of the upload state.
func (s UploadState) String() string {
	switch s {
	case UploadStateInitiated:
		return "initiated"
	case UploadStateUploading:
		return "uploading"
	case UploadStateFinalizing:
		return "finalizing"
	case UploadStateProcessing:
		return "processing"
	case UploadStateReady:
		return "ready"
	case UploadStateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// UploadSession represents one resumable upload. It is owned exclusively by
// the UploadFile call that created it; BytesCommitted is the server-
// acknowledged offset and the sole resumption anchor, monotonically
// non-decreasing for the session's lifetime.
type UploadSession struct {
	ID             string
	UploadURL      string
	TotalBytes     int64
	BytesCommitted int64
	State          UploadState

	lastProgress float64
}

// progress returns the fraction of committed bytes, guarded to never decrease
// across retried sub-steps.
func (s *UploadSession) progress() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	f := float64(s.BytesCommitted) / float64(s.TotalBytes)
	if f < s.lastProgress {
		return s.lastProgress
	}
	s.lastProgress = f
	return f
}

// commit records a server-acknowledged offset. Offsets never move backwards.
func (s *UploadSession) commit(offset int64) {
	if offset > s.BytesCommitted {
		s.BytesCommitted = offset
	}
}
