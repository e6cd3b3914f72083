package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// defaultPrompt is sent to providers that require a text instruction when the user typed none.
const defaultPrompt = "Describe this image in detail."

// OpenAI provides an implementation of the Describer interface for OpenAI-compatible vision models.
type OpenAI struct {
	model string

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance with the specified API key, base URL, and model name. An
// empty baseURL selects the official API endpoint.
func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		model:  model,
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With(slog.String("module", "openai")),
	}
}

// Describe streams a description of the image at imageURL using the chat completion API with a
// multi-content user message. The iterator yields the accumulated answer after every delta.
func (o OpenAI) Describe(ctx context.Context, imageURL, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if prompt == "" {
			prompt = defaultPrompt
		}

		req := goopenai.ChatCompletionRequest{
			Model:  o.model,
			Stream: true,
			Messages: []goopenai.ChatCompletionMessage{
				{
					Role: goopenai.ChatMessageRoleUser,
					MultiContent: []goopenai.ChatMessagePart{
						{
							Type: goopenai.ChatMessagePartTypeText,
							Text: prompt,
						},
						{
							Type: goopenai.ChatMessagePartTypeImageURL,
							ImageURL: &goopenai.ChatMessageImageURL{
								URL:    imageURL,
								Detail: goopenai.ImageURLDetailAuto,
							},
						},
					},
				},
			},
		}

		o.logger.Debug("Sending describe request",
			slog.String("model", o.model),
			slog.Int("imageURLLength", len(imageURL)),
		)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		completion, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer completion.Close()

		var acc strings.Builder
		for {
			response, err := completion.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			frag := response.Choices[0].Delta.Content
			if frag == "" {
				continue
			}

			acc.WriteString(frag)
			if !yield(acc.String(), nil) {
				return
			}
		}
	}
}
