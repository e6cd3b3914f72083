package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/models"
)

// Ollama provides an implementation of the Describer interface for local multimodal models served
// by an Ollama instance.
type Ollama struct {
	host  string
	model string

	client *api.Client
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server. If the provided host URL is
// invalid, the function will panic.
func NewOllama(host, model string) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:   host,
		model:  model,
		client: api.NewClient(u, &http.Client{}),
	}
}

// errStreamStopped aborts the generate callback once the consumer stops pulling from the iterator.
var errStreamStopped = errors.New("stream stopped by consumer")

// Describe streams a description of the image at imageURL (a data URI) from the Ollama generate
// API. The image payload is unwrapped from the data URI because Ollama expects raw bytes. The
// iterator yields the accumulated answer after every response fragment.
func (o Ollama) Describe(ctx context.Context, imageURL, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_, b64, err := models.ParseDataURI(imageURL)
		if err != nil {
			yield("", fmt.Errorf("error parsing image data uri: %w", err))
			return
		}
		img, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			yield("", fmt.Errorf("error decoding image payload: %w", err))
			return
		}

		if prompt == "" {
			prompt = defaultPrompt
		}

		t := true
		req := &api.GenerateRequest{
			Model:  o.model,
			Prompt: prompt,
			Images: []api.ImageData{img},
			Stream: &t,
		}

		var acc strings.Builder
		err = o.client.Generate(ctx, req, func(res api.GenerateResponse) error {
			if res.Response == "" {
				return nil
			}
			acc.WriteString(res.Response)
			if !yield(acc.String(), nil) {
				return errStreamStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStreamStopped) {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}
