package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testImageURL = "data:image/png;base64,aGVsbG8="

func TestInsightDescribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze-image", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			ImageBase64 string `json:"imageBase64"`
			Prompt      string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testImageURL, req.ImageBase64)
		assert.Equal(t, "what is this?", req.Prompt)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, frag := range []string{"A potted ", "fern on ", "a desk."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", frag)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	insight := services.NewInsight(srv.URL, "test-key", discardLogger())

	var snapshots []string
	for snapshot, err := range insight.Describe(context.Background(), testImageURL, "what is this?") {
		require.NoError(t, err)
		snapshots = append(snapshots, snapshot)
	}

	require.NotEmpty(t, snapshots)
	assert.Equal(t, "A potted fern on a desk.", snapshots[len(snapshots)-1])
	assert.Equal(t, []string{"A potted ", "A potted fern on ", "A potted fern on a desk."}, snapshots)
}

func TestInsightDescribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"rate limited"}`)
	}))
	defer srv.Close()

	insight := services.NewInsight(srv.URL, "test-key", discardLogger())

	var snapshots []string
	var gotErr error
	for snapshot, err := range insight.Describe(context.Background(), testImageURL, "") {
		if err != nil {
			gotErr = err
			break
		}
		snapshots = append(snapshots, snapshot)
	}

	assert.Empty(t, snapshots)
	require.Error(t, gotErr)
	// The server-provided message is surfaced verbatim.
	assert.Equal(t, "rate limited", gotErr.Error())
}

func TestInsightDescribeServerErrorWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	insight := services.NewInsight(srv.URL, "test-key", discardLogger())

	var gotErr error
	for _, err := range insight.Describe(context.Background(), testImageURL, "") {
		if err != nil {
			gotErr = err
			break
		}
	}

	require.Error(t, gotErr)
	assert.Equal(t, "unexpected status code: 503", gotErr.Error())
}

func TestInsightDescribeEndOfStreamWithoutSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"short answer\"}}]}\n")
	}))
	defer srv.Close()

	insight := services.NewInsight(srv.URL, "test-key", discardLogger())

	var last string
	for snapshot, err := range insight.Describe(context.Background(), testImageURL, "") {
		require.NoError(t, err)
		last = snapshot
	}

	assert.Equal(t, "short answer", last)
}
