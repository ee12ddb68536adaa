// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

// =============================================================================
// CONTENT ENCODING TESTS
// =============================================================================

func TestContent_MarshalText(t *testing.T) {
	sid := "s1"
	data, err := json.Marshal(ChatRequest{SessionID: &sid, Content: Content{Text: "hello"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"s1","content":"hello"}`, string(data))
}

func TestContent_MarshalParts(t *testing.T) {
	req := ChatRequest{Content: Content{Parts: []ContentPart{
		TextPart("what is this"),
		ImagePart("image/png", "AAAA"),
	}}}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sessionId": null,
		"content": [
			{"type":"text","text":"what is this"},
			{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}}
		]
	}`, string(data))
}

func TestContent_Unmarshal(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &c))
	assert.Equal(t, Content{Text: "plain"}, c)

	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"x"}]`), &c))
	assert.True(t, c.IsStructured())
	assert.Equal(t, "x", c.Parts[0].Text)
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChat_StreamsBody(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"text-delta\",\"data\":\"hi\"}\n\n")
		w.(http.Flusher).Flush()
		io.WriteString(w, "data: [DONE]\n\n")
	})

	body, err := client.Chat(context.Background(), ChatRequest{Content: Content{Text: "hello"}})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "data: [DONE]")
	assert.Equal(t, "hello", gotBody["content"])
	assert.Nil(t, gotBody["sessionId"])
}

func TestChat_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"agent crashed"}`)
	})

	_, err := client.Chat(context.Background(), ChatRequest{Content: Content{Text: "x"}})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Status)
	assert.Equal(t, "agent crashed", se.Detail())
	assert.ErrorIs(t, err, ErrServer)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestChat_EmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.Chat(context.Background(), ChatRequest{Content: Content{Text: "x"}})
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestChat_ContextCancelAbortsRead(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"type\":\"text-delta\",\"data\":\"a\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	body, err := client.Chat(ctx, ChatRequest{Content: Content{Text: "x"}})
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 256)
	_, err = body.Read(buf)
	require.NoError(t, err)

	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(body)
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read did not abort after cancel")
	}
}

// =============================================================================
// OTHER ENDPOINT TESTS
// =============================================================================

func TestInterrupt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/interrupt", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		io.WriteString(w, `{"status":"interrupted"}`)
	})

	res, err := client.Interrupt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, res.Status)
}

func TestUpload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "notes.txt", header.Filename)
		assert.Equal(t, "some notes", string(data))

		json.NewEncoder(w).Encode(UploadResult{
			Path:     "/uploads/abc_notes.txt",
			Filename: "notes.txt",
			Size:     int64(len(data)),
		})
	})

	res, err := client.Upload(context.Background(), "notes.txt", strings.NewReader("some notes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/abc_notes.txt", res.Path)
	assert.Equal(t, int64(10), res.Size)
}

func TestUpload_TooLarge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, `{"detail":"File too large"}`)
	})

	_, err := client.Upload(context.Background(), "big.bin", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestListSessions(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"default", 0, "20"},
		{"explicit", 5, "5"},
		{"clamped", 500, "100"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/sessions", r.URL.Path)
				assert.Equal(t, tc.want, r.URL.Query().Get("limit"))
				io.WriteString(w, `[
					{"session_id":"0123456789abcdef","title":"","created_at":"2025-01-02T03:04:05+00:00","updated_at":"2025-01-02T03:04:05.123456"},
					{"session_id":"s2","title":"Named","created_at":null,"updated_at":null}
				]`)
			})

			list, err := client.ListSessions(context.Background(), tc.limit)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "01234567", list[0].Title, "empty title falls back to short id")
			assert.Equal(t, 2025, list[0].Created().Year())
			assert.Equal(t, 2025, list[0].Updated().Year())
			assert.Equal(t, "Named", list[1].Title)
			assert.True(t, list[1].Updated().IsZero())
		})
	}
}

func TestGetSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/abc" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"Session not found"}`)
			return
		}
		io.WriteString(w, `{
			"session_id":"abc",
			"messages":[
				{"role":"user","content":"hi"},
				{"role":"assistant","content":[{"type":"text","text":"hello"}]}
			],
			"total_count": 40
		}`)
	})

	hist, err := client.GetSession(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", hist.SessionID)
	require.Len(t, hist.Messages, 2)
	assert.JSONEq(t, `"hi"`, string(hist.Messages[0].Content))
	require.NotNil(t, hist.TotalCount)
	assert.Equal(t, 40, *hist.TotalCount)

	_, err = client.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetBaseURL(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `[]`)
	})
	good := client.BaseURL()

	client.SetBaseURL("http://127.0.0.1:1/")
	_, err := client.ListSessions(context.Background(), 1)
	assert.Error(t, err)

	client.SetBaseURL(good + "/")
	_, err = client.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}
