package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/stream"
)

// Insight provides an implementation of the Describer interface backed by the hosted analyze-image
// function. The function accepts a JSON body with the image as a data URI plus an optional prompt,
// and answers with the SSE-style line protocol decoded by the stream package.
type Insight struct {
	endpoint  string
	clientKey string

	client *http.Client

	logger *slog.Logger
}

type insightRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Prompt      string `json:"prompt,omitempty"`
}

type insightErrorResponse struct {
	Error string `json:"error"`
}

const analyzeImagePath = "/analyze-image"

// NewInsight creates a new Insight instance for the service at baseURL, authorized with the public
// client key.
func NewInsight(baseURL, clientKey string, logger *slog.Logger) Insight {
	return Insight{
		endpoint:  strings.TrimRight(baseURL, "/") + analyzeImagePath,
		clientKey: clientKey,
		client:    &http.Client{},
		logger:    logger.With(slog.String("module", "insight")),
	}
}

// Describe streams a description of the image at imageURL (a data URI) from the hosted analysis
// function. It returns an iterator that yields the accumulated answer after every decoded fragment
// and potential errors. The stream ends on the protocol's done sentinel or when the transport
// closes; both count as completion.
func (i Insight) Describe(ctx context.Context, imageURL, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := i.doRequest(ctx, imageURL, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", err)
			return
		}
		defer resp.Body.Close()

		for snapshot, err := range stream.Decode(resp.Body) {
			if err != nil {
				yield("", err)
				return
			}
			i.logger.Debug("Decoded fragment", slog.Int("length", len(snapshot)))
			if !yield(snapshot, nil) {
				return
			}
		}
	}
}

func (i Insight) doRequest(ctx context.Context, imageURL, prompt string) (*http.Response, error) {
	jsonBody, err := json.Marshal(insightRequest{
		ImageBase64: imageURL,
		Prompt:      prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+i.clientKey)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		// The error body is surfaced to the user as-is when the service provides one.
		var apiErr insightErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, errors.New(apiErr.Error)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp, nil
}
