package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/models"
)

const (
	// maxImageBytes caps uploads at 20 MiB, checked before any network call.
	maxImageBytes = 20 << 20
	// formOverheadBytes is headroom for the prompt field and multipart framing on top of the
	// image payload.
	formOverheadBytes = 1 << 20
)

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	errorSSEType    = sse.Type("error")
)

// HandleSend processes a send action through HTTP POST requests. It accepts a multipart form with
// a required "image" file and an optional "prompt" text field, validates the upload, appends the
// user message together with an empty assistant placeholder to the transcript, and initiates
// asynchronous streaming of the description into the placeholder. Live updates are streamed
// through Server-Sent Events on the placeholder's topic.
//
// Only one send may be in flight at a time; while a description is streaming, further sends are
// rejected with 409 regardless of the view state. Validation failures are rejected before any
// transcript or network mutation.
func (m *Main) HandleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !m.sending.CompareAndSwap(false, true) {
		m.logger.Warn("Send rejected, another description is streaming")
		http.Error(w, "A description is already streaming", http.StatusConflict)
		return
	}
	// The guard is released here on every early return; on success the streaming goroutine owns it.
	streaming := false
	defer func() {
		if !streaming {
			m.sending.Store(false)
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		m.logger.Error("Failed to parse form", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Image is too large (max 20 MiB)", http.StatusRequestEntityTooLarge)
		return
	}

	// An image is required; a prompt alone (or nothing at all) is insufficient input.
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "An image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		http.Error(w, "The selected file must be an image", http.StatusBadRequest)
		return
	}
	if header.Size > maxImageBytes {
		http.Error(w, "Image is too large (max 20 MiB)", http.StatusRequestEntityTooLarge)
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		m.logger.Error("Failed to read upload", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Failed to read image", http.StatusInternalServerError)
		return
	}

	prompt := r.FormValue("prompt")
	imageURL := models.DataURI(mediaType, base64.StdEncoding.EncodeToString(imageData))

	// We create two messages: the user's turn and a placeholder for the streamed description.
	um := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   prompt,
		ImageURL:  imageURL,
		Timestamp: time.Now(),
	}
	userMsgID, err := m.store.AddMessage(r.Context(), um)
	if err != nil {
		m.logger.Error("Failed to add user message",
			slog.String("message", fmt.Sprintf("%+v", um)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	am := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
	}
	aiMsgID, err := m.store.AddMessage(r.Context(), am)
	if err != nil {
		m.logger.Error("Failed to add placeholder message",
			slog.String("message", fmt.Sprintf("%+v", am)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	streaming = true
	go m.describe(aiMsgID, imageURL, prompt)

	if err := m.templates.ExecuteTemplate(w, "user_message", message{
		ID:             userMsgID,
		Role:           string(um.Role),
		Content:        renderContent(um),
		ImageURL:       template.URL(um.ImageURL), //nolint:gosec // built from the validated upload above
		Timestamp:      um.Timestamp,
		StreamingState: models.StreamingStateEnded,
	}); err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		return
	}

	if err := m.templates.ExecuteTemplate(w, "ai_message", message{
		ID:             aiMsgID,
		Role:           string(am.Role),
		Timestamp:      am.Timestamp,
		StreamingState: models.StreamingStateLoading,
	}); err != nil {
		m.logger.Error("Failed to render placeholder message", slog.String(errLoggerKey, err.Error()))
	}
}

// describe streams the description of imageURL into the placeholder message with the given ID. It
// runs asynchronously to the send request; updates and errors reach the browser over the
// placeholder's SSE topic. The placeholder is rolled back if the stream fails, so a failed turn
// leaves exactly the user message behind.
//
// Cancellation is not supported: once a stream starts it runs to the done sentinel, end-of-stream,
// or a transport error, independent of the originating request's lifetime.
func (m *Main) describe(msgID, imageURL, prompt string) {
	defer m.sending.Store(false)
	// Ensure SSE connection cleanup on function exit
	defer func() {
		e := &sse.Message{Type: sse.Type("closeMessage")}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e, messageIDTopic(msgID))
	}()

	ctx := context.Background()

	for snapshot, err := range m.describer.Describe(ctx, imageURL, prompt) {
		if err != nil {
			m.logger.Error("Error from analysis provider", slog.String(errLoggerKey, err.Error()))
			m.rollback(ctx, msgID)

			msg := sse.Message{Type: errorSSEType}
			msg.AppendData(err.Error())
			_ = m.sseSrv.Publish(&msg, messageIDTopic(msgID))
			return
		}

		// Each snapshot carries the complete answer so far, so the placeholder content is
		// replaced, never appended to.
		if err := m.store.SetMessageContent(ctx, msgID, snapshot); err != nil {
			m.logger.Error("Failed to update placeholder message",
				slog.String("messageID", msgID),
				slog.String(errLoggerKey, err.Error()))
			return
		}

		rendered, err := models.RenderMarkdown(snapshot)
		if err != nil {
			m.logger.Error("Failed to render description",
				slog.String("messageID", msgID),
				slog.String(errLoggerKey, err.Error()))
			continue
		}

		msg := sse.Message{Type: messagesSSEType}
		msg.AppendData(rendered)
		if err := m.sseSrv.Publish(&msg, messageIDTopic(msgID)); err != nil {
			m.logger.Error("Failed to publish message update",
				slog.String("messageID", msgID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
	}
}

func (m *Main) rollback(ctx context.Context, msgID string) {
	if err := m.store.RemoveMessage(ctx, msgID); err != nil {
		m.logger.Error("Failed to roll back placeholder message",
			slog.String("messageID", msgID),
			slog.String(errLoggerKey, err.Error()))
	}
}
