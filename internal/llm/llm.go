package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrRejected means the service refused the request as malformed or
	// unauthorized; retrying will not help
	ErrRejected = errors.New("llm rejected the request")

	// ErrQuotaExceeded means the service is rate limiting or out of quota
	ErrQuotaExceeded = errors.New("llm quota exceeded")

	// ErrUnavailable means the service could not be reached or kept failing
	// after every retry
	ErrUnavailable = errors.New("llm unavailable")
)

// Role is the author of a conversation turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FileRef points at an uploaded file. Providers without a file API carry the
// contents inline.
type FileRef struct {
	Name        string `json:"name"`
	URI         string `json:"uri,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Part is one piece of a turn: either text or a file
type Part struct {
	Text string   `json:"text,omitempty"`
	File *FileRef `json:"file,omitempty"`
}

// Text creates a text part
func Text(s string) Part {
	return Part{Text: s}
}

// File creates a file part
func File(ref FileRef) Part {
	return Part{File: &ref}
}

// Message is one turn of a conversation
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// TextContent joins the text parts of the message
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Files returns the files referenced by the message
func (m Message) Files() []FileRef {
	var refs []FileRef
	for _, p := range m.Parts {
		if p.File != nil {
			refs = append(refs, *p.File)
		}
	}
	return refs
}

// Options shape a single generation request
type Options struct {
	// SystemInstruction is sent ahead of the conversation
	SystemInstruction string

	// Schema constrains the response to JSON matching it
	Schema *Schema

	// SchemaName names the schema for providers that require one
	SchemaName string

	// JSON requests a JSON response even without a schema
	JSON bool
}

// Provider is a generative model service
type Provider interface {
	// Name returns the provider name, e.g. "gemini"
	Name() string

	// UploadFile makes a local file available to later prompts
	UploadFile(ctx context.Context, path, mimeType string) (FileRef, error)

	// DeleteFile releases a file returned by UploadFile
	DeleteFile(ctx context.Context, ref FileRef) error

	// Generate sends parts as the next user turn after history and returns
	// the model's text reply
	Generate(ctx context.Context, history []Message, parts []Part, opts Options) (string, error)

	// Embed returns an embedding vector for text
	Embed(ctx context.Context, text string) ([]float32, error)
}
