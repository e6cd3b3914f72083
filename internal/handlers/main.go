package handlers

import (
	"context"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tmaxmax/go-sse"

	imageinsight "github.com/soumyapothuganti123-del/image-insight-ai"
	"github.com/soumyapothuganti123-del/image-insight-ai/internal/models"
)

// Describer streams a natural-language description of an uploaded image. It accepts a context, the
// image as a data URI, and an optional user prompt, returning an iterator that yields the full
// answer accumulated so far (never a diff) and potential errors.
type Describer interface {
	Describe(ctx context.Context, imageURL, prompt string) iter.Seq2[string, error]
}

// Store defines the interface for the conversation transcript. Messages are appended in order;
// content replacement and removal are reserved for the trailing entry, which is how a streaming
// placeholder is filled in or rolled back.
type Store interface {
	Messages(ctx context.Context) ([]models.Message, error)
	AddMessage(ctx context.Context, message models.Message) (string, error)
	SetMessageContent(ctx context.Context, messageID, content string) error
	RemoveMessage(ctx context.Context, messageID string) error
}

// Main handles the core functionality of the application, managing server-sent events, HTML
// templates, and interactions between the Describer and Store components. It also owns the
// single-flight send guard: at most one description stream is in flight at a time, enforced here
// rather than by the view layer.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	describer Describer
	store     Store

	sending atomic.Bool

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided Describer and Store implementations. It
// initializes the SSE server and parses the required HTML templates from the embedded filesystem.
func NewMain(describer Describer, store Store, logger *slog.Logger) (*Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		imageinsight.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, err
	}

	return &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				// We create a message-specific topic if the client requests updates for a particular message
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		describer: describer,
		store:     store,
		logger:    logger.With(slog.String("module", "handlers")),
	}, nil
}

// HandleSSE serves the event stream carrying live transcript updates.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to
// all connected clients and waits up to 5 seconds for connections to terminate. After the timeout,
// any remaining connections are forcefully closed.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
