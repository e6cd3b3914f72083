package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/models"
)

// message is the view model for one transcript entry.
type message struct {
	ID      string
	Role    string
	Content template.HTML
	// ImageURL is a data URI built server-side from a validated upload; template.URL keeps
	// html/template from rejecting the data: scheme.
	ImageURL       template.URL
	Timestamp      time.Time
	StreamingState string
}

type homePageData struct {
	Messages []message
	Sending  bool
}

// renderContent converts a message's text into HTML for the templates. Goldmark escapes raw HTML
// by default, so user input passes through it as safely as model output.
func renderContent(msg models.Message) template.HTML {
	rendered, err := models.RenderMarkdown(msg.Content)
	if err != nil {
		// Fall back to the escaped raw text.
		return template.HTML(template.HTMLEscapeString(msg.Content)) //nolint:gosec // escaped above
	}
	return template.HTML(rendered) //nolint:gosec // goldmark escapes raw HTML
}

// HandleHome renders the chat page with the current transcript.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	messages, err := m.store.Messages(r.Context())
	if err != nil {
		m.logger.Error("Failed to get messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sending := m.sending.Load()

	msgs := make([]message, len(messages))
	for i := range messages {
		// Only the trailing assistant message can still be streaming.
		streamingState := models.StreamingStateEnded
		if sending && i == len(messages)-1 && messages[i].Role == models.RoleAssistant {
			streamingState = models.StreamingStateStreaming
		}
		msgs[i] = message{
			ID:             messages[i].ID,
			Role:           string(messages[i].Role),
			Content:        renderContent(messages[i]),
			ImageURL:       template.URL(messages[i].ImageURL), //nolint:gosec // built from a validated upload
			Timestamp:      messages[i].Timestamp,
			StreamingState: streamingState,
		}
	}

	data := homePageData{
		Messages: msgs,
		Sending:  sending,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
