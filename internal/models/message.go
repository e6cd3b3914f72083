package models

import (
	"fmt"
	"strings"
	"time"
)

// Message represents an individual entry in the conversation transcript. User messages carry the
// prompt text and, when an image was uploaded, a data URI pointing at it. Assistant messages start
// out empty and have their content replaced with the accumulated description while a response is
// being streamed.
type Message struct {
	ID        string
	Role      Role
	Content   string
	ImageURL  string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message. A message with this role may carry an image data URI.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message. Its content grows while a description is
	// streamed and is frozen once the stream completes.
	RoleAssistant Role = "assistant"
)

// Streaming states used by the view layer to pick the right rendering for a message.
const (
	StreamingStateLoading   = "loading"
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)

// DataURI encodes an uploaded image as a data URI suitable for both the transcript and the
// analysis request payload.
func DataURI(mimeType, base64Data string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)
}

// ParseDataURI splits a data URI into its media type and base64 payload. Providers that need the
// raw image bytes (rather than the URI itself) use this to unwrap the transcript representation.
func ParseDataURI(uri string) (mimeType, base64Data string, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", fmt.Errorf("not a data uri: %q", truncate(uri, 32))
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("data uri has no payload: %q", truncate(uri, 32))
	}
	mimeType, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return "", "", fmt.Errorf("data uri is not base64 encoded: %q", truncate(uri, 32))
	}
	if mimeType == "" {
		return "", "", fmt.Errorf("data uri has no media type: %q", truncate(uri, 32))
	}
	return mimeType, data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
