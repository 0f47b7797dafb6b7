package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/epubaudio/internal/failure"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/"})
}

func TestExtractText(t *testing.T) {
	t.Run("sends multipart file", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/extract", r.URL.Path)

			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "book.epub", hdr.Filename)
			assert.Equal(t, []byte("PK-data"), body)

			json.NewEncoder(w).Encode(map[string]string{"text": "Chapter 1..."})
		}))

		text, err := c.ExtractText(context.Background(), File{Name: "book.epub", Payload: []byte("PK-data")})
		require.NoError(t, err)
		assert.Equal(t, "Chapter 1...", text)
	})

	t.Run("accepts content field", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"content": "from content"})
		}))

		text, err := c.ExtractText(context.Background(), File{Name: "b.epub", Payload: []byte("x")})
		require.NoError(t, err)
		assert.Equal(t, "from content", text)
	})

	t.Run("corrupt file is rejected", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": "not a valid EPUB archive"})
		}))

		_, err := c.ExtractText(context.Background(), File{Name: "b.epub", Payload: []byte("x")})
		require.Error(t, err)
		assert.Equal(t, failure.RemoteRejected, failure.Classify(err))
		assert.Equal(t, "not a valid EPUB archive", failure.Report(err).Message)
	})

	t.Run("empty payload", func(t *testing.T) {
		c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
		_, err := c.ExtractText(context.Background(), File{Name: "b.epub"})
		assert.True(t, failure.Is(err, failure.InvalidInput))
	})
}

func TestStartConversion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"numeric id", `{"task_id": 42}`, "42"},
		{"string id", `{"task_id": "a1b2"}`, "a1b2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req ConvertRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Chapter 1 edited", req.Text)
				assert.Equal(t, "book.epub", req.Filename)
				w.WriteHeader(http.StatusAccepted)
				io.WriteString(w, tt.body)
			}))

			id, err := c.StartConversion(context.Background(), "Chapter 1 edited", "book.epub")
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	t.Run("missing id", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{}`)
		}))
		_, err := c.StartConversion(context.Background(), "x", "b.epub")
		assert.True(t, failure.Is(err, failure.RemoteRejected))
	})
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		code int
		want failure.Category
	}{
		{http.StatusBadRequest, failure.RemoteRejected},
		{http.StatusUnprocessableEntity, failure.RemoteRejected},
		{http.StatusInternalServerError, failure.RemoteRejected},
		{http.StatusRequestTimeout, failure.NetworkFailure},
		{http.StatusTooManyRequests, failure.NetworkFailure},
		{http.StatusBadGateway, failure.NetworkFailure},
		{http.StatusServiceUnavailable, failure.NetworkFailure},
		{http.StatusGatewayTimeout, failure.NetworkFailure},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			_, err := c.StartConversion(context.Background(), "x", "b.epub")
			assert.Equal(t, tt.want, failure.Classify(err))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := NewClient(Config{BaseURL: srv.URL})
		_, err := c.CheckProgress(context.Background(), "1")
		assert.Equal(t, failure.NetworkFailure, failure.Classify(err))
	})
}

func TestCheckProgress(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/progress/42", r.URL.Path)
			io.WriteString(w, `{"status":"running","progress":30.4,"message":"Synthesizing segment 3/10"}`)
		}))

		p, err := c.CheckProgress(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, Progress{Status: StatusRunning, Percent: 30, Message: "Synthesizing segment 3/10"}, p)
		assert.False(t, p.Status.IsTerminal())
	})

	t.Run("completed", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status":"completed","progress":100,"output_file":"book.mp3"}`)
		}))

		p, err := c.CheckProgress(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, p.Status)
		assert.Equal(t, "book.mp3", p.OutputFile)
		assert.True(t, p.Status.IsTerminal())
	})

	t.Run("failed", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status":"failed","progress":55,"error":"voice unavailable","output_file":"x.mp3"}`)
		}))

		p, err := c.CheckProgress(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, p.Status)
		assert.Equal(t, "voice unavailable", p.FailureReason)
		assert.Empty(t, p.OutputFile)
	})

	t.Run("unknown job is a failed progress", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		}))

		p, err := c.CheckProgress(context.Background(), "gone")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, p.Status)
		assert.NotEmpty(t, p.FailureReason)
	})

	t.Run("clamps percent", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status":"processing","progress":140}`)
		}))

		p, err := c.CheckProgress(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, StatusRunning, p.Status)
		assert.Equal(t, 100, p.Percent)
	})
}

func TestResolveDownloadLocation(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:8080/"})

	loc, err := c.ResolveDownloadLocation("book.mp3")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/download/book.mp3", loc)

	loc, err = c.ResolveDownloadLocation("my book.mp3")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/download/my%20book.mp3", loc)

	_, err = c.ResolveDownloadLocation(" ")
	assert.True(t, failure.Is(err, failure.InvalidInput))
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download/book.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))

	loc, err := c.ResolveDownloadLocation("book.mp3")
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), loc, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "ID3audio", buf.String())

	missing, _ := c.ResolveDownloadLocation("nope.mp3")
	_, err = c.Download(context.Background(), missing, io.Discard)
	assert.True(t, failure.Is(err, failure.RemoteRejected))
}

func TestTaskID_UnmarshalJSON(t *testing.T) {
	var resp ConvertResponse
	require.NoError(t, json.Unmarshal([]byte(`{"task_id": 1234567890123}`), &resp))
	assert.Equal(t, TaskID("1234567890123"), resp.TaskID)

	assert.Error(t, json.Unmarshal([]byte(`{"task_id": true}`), &resp))
}
