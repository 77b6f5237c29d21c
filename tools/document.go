package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skosovsky/agentstream"
	"github.com/skosovsky/agentstream/provider"
)

// TopicDocument is the data-event topic document progress is published under.
const TopicDocument = "document"

// Document generation statuses, in the order a client observes them.
const (
	DocumentStarting   = "starting"
	DocumentProcessing = "processing"
	DocumentCompleted  = "completed"
	DocumentFailed     = "failed"
)

// progressDenominator is the character count treated as a full-length
// document when estimating progress; intermediate progress caps at 95.
const progressDenominator = 2000

// DocumentArgs is the input schema for the document tool.
type DocumentArgs struct {
	Title   string `json:"title" description:"The title of the document"`
	Content string `json:"content" description:"The main content/topic of the document"`
	Format  string `json:"format,omitempty" description:"The format of the document" enum:"markdown,html,text"`
}

// Validate normalizes the format, defaulting to markdown.
func (a *DocumentArgs) Validate() error {
	switch a.Format {
	case "":
		a.Format = "markdown"
	case "markdown", "html", "text":
	default:
		return fmt.Errorf("unsupported format %q", a.Format)
	}
	return nil
}

// DocumentData is the data-event payload for one document id. Fields beyond
// status, title, progress, and message are populated per status.
type DocumentData struct {
	Status          string `json:"status"`
	Title           string `json:"title"`
	Progress        int    `json:"progress"`
	Message         string `json:"message"`
	DocumentPreview string `json:"documentPreview,omitempty"`
	FullDocument    string `json:"fullDocument,omitempty"`
	Format          string `json:"format,omitempty"`
	WordCount       int    `json:"wordCount,omitempty"`
	CharacterCount  int    `json:"characterCount,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// DocumentResult is the tool's structured output.
type DocumentResult struct {
	DocumentID     string `json:"documentId"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	Format         string `json:"format"`
	Status         string `json:"status"`
	WordCount      int    `json:"wordCount"`
	CharacterCount int    `json:"characterCount"`
}

const documentPromptTemplate = `Write a comprehensive document titled %q about %s.

The document should be well-structured with:
- A clear introduction
- Detailed main content with proper headings
- Key points and important information
- A conclusion with actionable takeaways

Format as markdown with proper headings, lists, and emphasis where appropriate.
Make it informative and engaging.`

// NewDocumentTool builds the document generation tool. It runs a nested model
// stream (no tools) and publishes progress data events as content arrives:
// starting, then processing per chunk with a growing preview, then completed
// with the full document, or failed if the nested stream breaks.
func NewDocumentTool(client provider.Client, opts ...agentstream.ToolOption) (agentstream.Tool, error) {
	if client == nil {
		return nil, errors.New("document tool: model client is required")
	}
	defaults := []agentstream.ToolOption{
		agentstream.WithTimeout(60 * time.Second),
		agentstream.WithTags("document", "generation"),
	}
	return agentstream.NewStreamTool(
		"createDocument",
		"Create a document with streaming progress updates",
		func(ctx context.Context, args DocumentArgs, emit agentstream.EmitFunc) (DocumentResult, error) {
			return generateDocument(ctx, client, args, emit)
		},
		append(defaults, opts...)...,
	)
}

func generateDocument(ctx context.Context, client provider.Client, args DocumentArgs, emit agentstream.EmitFunc) (DocumentResult, error) {
	docID := uuid.NewString()
	if err := emit(TopicDocument, docID, DocumentData{
		Status:   DocumentStarting,
		Title:    args.Title,
		Progress: 0,
		Message:  "Starting document creation...",
	}); err != nil {
		return DocumentResult{}, err
	}

	fullDocument, lastProgress, err := streamDocumentBody(ctx, client, args, docID, emit)
	if err != nil {
		failData := DocumentData{
			Status:   DocumentFailed,
			Title:    args.Title,
			Progress: lastProgress,
			Message:  "Document creation failed",
			Reason:   err.Error(),
		}
		if emitErr := emit(TopicDocument, docID, failData); emitErr != nil {
			return DocumentResult{}, emitErr
		}
		return DocumentResult{}, fmt.Errorf("document generation: %w: %v", agentstream.ErrUpstream, err)
	}

	wordCount := len(strings.Fields(fullDocument))
	charCount := len(fullDocument)
	if err := emit(TopicDocument, docID, DocumentData{
		Status:         DocumentCompleted,
		Title:          args.Title,
		Progress:       100,
		Message:        "Document creation completed!",
		FullDocument:   fullDocument,
		Format:         args.Format,
		WordCount:      wordCount,
		CharacterCount: charCount,
	}); err != nil {
		return DocumentResult{}, err
	}

	return DocumentResult{
		DocumentID:     docID,
		Title:          args.Title,
		Content:        fullDocument,
		Format:         args.Format,
		Status:         DocumentCompleted,
		WordCount:      wordCount,
		CharacterCount: charCount,
	}, nil
}

// streamDocumentBody runs the nested model stream, emitting a processing
// update per text chunk. Progress is a length-based estimate and never
// decreases; the last emitted value is returned so a failure event can carry
// it forward.
func streamDocumentBody(ctx context.Context, client provider.Client, args DocumentArgs, docID string, emit agentstream.EmitFunc) (string, int, error) {
	prompt := fmt.Sprintf(documentPromptTemplate, args.Title, args.Content)
	stream, err := client.Stream(ctx, provider.Request{
		Messages: []provider.Message{provider.UserMessage(prompt)},
	})
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = stream.Close()
	}()

	var doc strings.Builder
	progress := 0
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return doc.String(), progress, nil
			}
			return "", progress, err
		}
		if chunk.Type != provider.ChunkText || chunk.Text == "" {
			continue
		}
		doc.WriteString(chunk.Text)
		if est := estimateProgress(doc.Len()); est > progress {
			progress = est
		}
		if err := emit(TopicDocument, docID, DocumentData{
			Status:          DocumentProcessing,
			Title:           args.Title,
			Progress:        progress,
			Message:         "Generating document content...",
			DocumentPreview: doc.String(),
		}); err != nil {
			return "", progress, err
		}
	}
}

func estimateProgress(chars int) int {
	est := int(math.Round(float64(chars) / progressDenominator * 95))
	if est > 95 {
		return 95
	}
	return est
}
