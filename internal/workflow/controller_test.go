package workflow

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/desktop"
	"github.com/jackzampolin/epubaudio/internal/failure"
)

const testPoll = 5 * time.Millisecond

type fakeBackend struct {
	mu            sync.Mutex
	extract       func(ctx context.Context, f backend.File) (string, error)
	convert       func(ctx context.Context, text, filename string) (string, error)
	progress      func(ctx context.Context, n int) (backend.Progress, error)
	convertTexts  []string
	progressCalls int
}

func (f *fakeBackend) ExtractText(ctx context.Context, file backend.File) (string, error) {
	if f.extract == nil {
		return "Chapter 1...", nil
	}
	return f.extract(ctx, file)
}

func (f *fakeBackend) StartConversion(ctx context.Context, text, filename string) (string, error) {
	f.mu.Lock()
	f.convertTexts = append(f.convertTexts, text)
	f.mu.Unlock()
	if f.convert == nil {
		return "42", nil
	}
	return f.convert(ctx, text, filename)
}

func (f *fakeBackend) CheckProgress(ctx context.Context, jobID string) (backend.Progress, error) {
	f.mu.Lock()
	f.progressCalls++
	n := f.progressCalls
	f.mu.Unlock()
	if f.progress == nil {
		return backend.Progress{Status: backend.StatusRunning, Percent: 1}, nil
	}
	return f.progress(ctx, n)
}

func (f *fakeBackend) ResolveDownloadLocation(outputFile string) (string, error) {
	return "http://backend/download/" + outputFile, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressCalls
}

func newController(t *testing.T, fb *fakeBackend) *Controller {
	t.Helper()
	c, err := New(Config{Backend: fb, PollInterval: testPoll})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// toReview drives a controller to the Review stage.
func toReview(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.SelectFile("book.epub", []byte("PK")))
	require.NoError(t, c.Extract(context.Background()))
	require.Equal(t, StageReview, c.State().Stage)
}

func waitTerminal(t *testing.T, c *Controller) State {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State().ActiveJob.Terminal()
	}, 2*time.Second, time.Millisecond)
	return c.State()
}

func initialState() State {
	return State{Stage: StageUpload}
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{Backend: &fakeBackend{}, Extension: "EPUB"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, ".epub", c.Extension())
	assert.Equal(t, initialState(), c.State())
}

func TestSelectFile(t *testing.T) {
	t.Run("rejects non-matching extensions", func(t *testing.T) {
		for _, name := range []string{"book.pdf", "book", "book.epub.txt", "epub", ""} {
			c := newController(t, &fakeBackend{})
			require.NoError(t, c.SelectFile("prior.epub", []byte("PK")))

			err := c.SelectFile(name, []byte("PK"))
			require.Error(t, err, name)

			s := c.State()
			assert.Nil(t, s.SelectedFile, name)
			require.NotNil(t, s.LastError, name)
			assert.Equal(t, failure.InvalidInput, s.LastError.Category, name)
			assert.Equal(t, StageUpload, s.Stage)
		}
	})

	t.Run("accepts any case", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		require.NoError(t, c.SelectFile("Book.EPUB", []byte("PK")))
		s := c.State()
		require.NotNil(t, s.SelectedFile)
		assert.Equal(t, "Book.EPUB", s.SelectedFile.Name)
		assert.Nil(t, s.LastError)
	})

	t.Run("empty payload", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		err := c.SelectFile("book.epub", nil)
		assert.True(t, failure.Is(err, failure.InvalidInput))
		assert.Nil(t, c.State().SelectedFile)
	})

	t.Run("valid selection clears error", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		_ = c.SelectFile("book.pdf", []byte("x"))
		require.NoError(t, c.SelectFile("book.epub", []byte("PK")))
		assert.Nil(t, c.State().LastError)
	})
}

func TestExtract(t *testing.T) {
	t.Run("without a file", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		err := c.Extract(context.Background())
		assert.True(t, failure.Is(err, failure.InvalidInput))
		assert.Equal(t, StageUpload, c.State().Stage)
		assert.Equal(t, failure.InvalidInput, c.State().LastError.Category)
	})

	t.Run("rejected file stays in upload", func(t *testing.T) {
		fb := &fakeBackend{extract: func(context.Context, backend.File) (string, error) {
			return "", failure.New(failure.RemoteRejected, "not a valid EPUB archive")
		}}
		c := newController(t, fb)
		require.NoError(t, c.SelectFile("book.epub", []byte("PK")))

		err := c.Extract(context.Background())
		assert.True(t, failure.Is(err, failure.RemoteRejected))

		s := c.State()
		assert.Equal(t, StageUpload, s.Stage)
		assert.False(t, s.Busy)
		assert.NotNil(t, s.SelectedFile)
		assert.Equal(t, "not a valid EPUB archive", s.LastError.Message)
	})

	t.Run("raw transport errors are categorized", func(t *testing.T) {
		fb := &fakeBackend{extract: func(context.Context, backend.File) (string, error) {
			return "", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}}
		c := newController(t, fb)
		require.NoError(t, c.SelectFile("book.epub", []byte("PK")))

		_ = c.Extract(context.Background())
		s := c.State()
		require.NotNil(t, s.LastError)
		assert.Equal(t, failure.NetworkFailure, s.LastError.Category)
		assert.NotContains(t, s.LastError.Message, "connection refused")
	})
}

func TestBusyRejectsActions(t *testing.T) {
	t.Run("during extract", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		fb := &fakeBackend{extract: func(context.Context, backend.File) (string, error) {
			close(entered)
			<-release
			return "Chapter 1...", nil
		}}
		c := newController(t, fb)
		require.NoError(t, c.SelectFile("book.epub", []byte("PK")))

		done := make(chan error, 1)
		go func() { done <- c.Extract(context.Background()) }()
		<-entered

		before := c.State()
		require.True(t, before.Busy)

		for name, action := range map[string]func() error{
			"extract": func() error { return c.Extract(context.Background()) },
			"select":  func() error { return c.SelectFile("other.epub", []byte("PK")) },
			"reset":   c.Reset,
			"back":    c.Back,
		} {
			err := action()
			assert.True(t, failure.Is(err, failure.Busy), name)
			assert.Equal(t, before, c.State(), name)
		}
		assert.False(t, before.Allowed(ActionExtract))

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StageReview, c.State().Stage)
	})

	t.Run("during convert", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		fb := &fakeBackend{convert: func(context.Context, string, string) (string, error) {
			close(entered)
			<-release
			return "42", nil
		}}
		c := newController(t, fb)
		toReview(t, c)

		done := make(chan error, 1)
		go func() { done <- c.Convert(context.Background()) }()
		<-entered

		before := c.State()
		require.True(t, before.Busy)
		assert.True(t, failure.Is(c.Convert(context.Background()), failure.Busy))
		assert.True(t, failure.Is(c.EditText("changed"), failure.Busy))
		assert.Equal(t, before, c.State())

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StageConverting, c.State().Stage)
		assert.Len(t, fb.convertTexts, 1)
	})
}

func TestWrongStageIsRejected(t *testing.T) {
	c := newController(t, &fakeBackend{})

	for name, action := range map[string]func() error{
		"edit":    func() error { return c.EditText("x") },
		"convert": func() error { return c.Convert(context.Background()) },
		"back":    c.Back,
		"export":  func() error { return c.ExportText(&bytes.Buffer{}) },
	} {
		err := action()
		assert.True(t, failure.Is(err, failure.InvalidInput), name)
		assert.Equal(t, initialState(), c.State(), name)
	}

	_, err := c.DownloadLocation()
	assert.True(t, failure.Is(err, failure.InvalidInput))
}

func TestConvert(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		toReview(t, c)
		require.NoError(t, c.EditText("   \n"))

		err := c.Convert(context.Background())
		assert.True(t, failure.Is(err, failure.InvalidInput))
		s := c.State()
		assert.Equal(t, StageReview, s.Stage)
		assert.Nil(t, s.ActiveJob)
		assert.False(t, c.Polling())
	})

	t.Run("network failure", func(t *testing.T) {
		fb := &fakeBackend{convert: func(context.Context, string, string) (string, error) {
			return "", failure.Wrap(failure.NetworkFailure, "", errors.New("dial tcp: connection refused"))
		}}
		c := newController(t, fb)
		toReview(t, c)

		err := c.Convert(context.Background())
		assert.True(t, failure.Is(err, failure.NetworkFailure))

		s := c.State()
		assert.Equal(t, StageReview, s.Stage)
		require.NotNil(t, s.LastError)
		assert.Equal(t, failure.NetworkFailure, s.LastError.Category)
		assert.Nil(t, s.ActiveJob)
		assert.False(t, s.Busy)
		assert.False(t, c.Polling())

		time.Sleep(5 * testPoll)
		assert.Zero(t, fb.calls())
	})

	t.Run("terminal failure surfaces reason", func(t *testing.T) {
		fb := &fakeBackend{progress: func(_ context.Context, n int) (backend.Progress, error) {
			if n < 2 {
				return backend.Progress{Status: backend.StatusRunning, Percent: 40}, nil
			}
			return backend.Progress{Status: backend.StatusFailed, Percent: 40, FailureReason: "voice unavailable"}, nil
		}}
		c := newController(t, fb)
		toReview(t, c)
		require.NoError(t, c.Convert(context.Background()))

		s := waitTerminal(t, c)
		assert.Equal(t, backend.StatusFailed, s.ActiveJob.Status)
		assert.Equal(t, "voice unavailable", s.ActiveJob.FailureReason)
		require.NotNil(t, s.LastError)
		assert.Equal(t, failure.RemoteRejected, s.LastError.Category)
		assert.Equal(t, "voice unavailable", s.LastError.Message)
		assert.False(t, s.Allowed(ActionDownload))
	})
}

func TestPollNetworkFailuresAreNotSurfaced(t *testing.T) {
	fb := &fakeBackend{progress: func(_ context.Context, n int) (backend.Progress, error) {
		if n <= 3 {
			return backend.Progress{}, failure.Wrap(failure.NetworkFailure, "", &net.OpError{Op: "read", Err: errors.New("reset")})
		}
		return backend.Progress{Status: backend.StatusCompleted, Percent: 100, OutputFile: "book.mp3"}, nil
	}}

	var mu sync.Mutex
	var jobSnapshots []Job
	c, err := New(Config{
		Backend:      fb,
		PollInterval: testPoll,
		OnChange: func(s State) {
			if s.ActiveJob != nil {
				mu.Lock()
				jobSnapshots = append(jobSnapshots, *s.ActiveJob)
				mu.Unlock()
			}
		},
	})
	require.NoError(t, err)
	defer c.Close()

	toReview(t, c)
	require.NoError(t, c.Convert(context.Background()))

	s := waitTerminal(t, c)
	assert.Nil(t, s.LastError)
	assert.Equal(t, backend.StatusCompleted, s.ActiveJob.Status)
	assert.Equal(t, 4, fb.calls())

	mu.Lock()
	defer mu.Unlock()
	// At most Convert's own snapshot, then one update and the terminal merge.
	var running, done int
	for _, j := range jobSnapshots {
		switch j.Status {
		case backend.StatusRunning:
			running++
		case backend.StatusCompleted:
			done++
		}
	}
	assert.LessOrEqual(t, running, 1)
	assert.Equal(t, 2, done)
	assert.Equal(t, backend.StatusCompleted, jobSnapshots[len(jobSnapshots)-1].Status)
}

func TestBackFromConverting(t *testing.T) {
	t.Run("drops in-flight tick", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		fb := &fakeBackend{progress: func(context.Context, int) (backend.Progress, error) {
			once.Do(func() { close(entered) })
			<-release
			return backend.Progress{Status: backend.StatusCompleted, Percent: 100, OutputFile: "late.mp3"}, nil
		}}

		c := newController(t, fb)
		toReview(t, c)
		require.NoError(t, c.Convert(context.Background()))
		<-entered

		require.NoError(t, c.Back())
		after := c.State()
		assert.Equal(t, StageReview, after.Stage)
		assert.Nil(t, after.ActiveJob)
		assert.Equal(t, "Chapter 1...", after.ExtractedText)
		assert.False(t, c.Polling())

		close(release)
		time.Sleep(5 * testPoll)
		assert.Equal(t, after, c.State())
	})

	t.Run("then convert again", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		toReview(t, c)
		require.NoError(t, c.Convert(context.Background()))
		require.NoError(t, c.Back())
		require.NoError(t, c.Convert(context.Background()))
		assert.Equal(t, StageConverting, c.State().Stage)
		assert.True(t, c.Polling())
	})
}

func TestBackFromReview(t *testing.T) {
	c := newController(t, &fakeBackend{})
	toReview(t, c)

	require.NoError(t, c.Back())
	s := c.State()
	assert.Equal(t, StageUpload, s.Stage)
	assert.NotNil(t, s.SelectedFile)
	assert.True(t, s.Allowed(ActionExtract))
}

func TestResetRoundTrip(t *testing.T) {
	stages := map[string]func(t *testing.T, c *Controller){
		"fresh": func(*testing.T, *Controller) {},
		"upload with file": func(t *testing.T, c *Controller) {
			require.NoError(t, c.SelectFile("book.epub", []byte("PK")))
		},
		"upload with error": func(t *testing.T, c *Controller) {
			_ = c.SelectFile("book.pdf", []byte("PK"))
		},
		"review": func(t *testing.T, c *Controller) {
			toReview(t, c)
			require.NoError(t, c.EditText("edited"))
		},
		"converting": func(t *testing.T, c *Controller) {
			toReview(t, c)
			require.NoError(t, c.Convert(context.Background()))
		},
	}

	for name, setup := range stages {
		t.Run(name, func(t *testing.T) {
			c := newController(t, &fakeBackend{})
			setup(t, c)

			require.NoError(t, c.Reset())
			assert.Equal(t, initialState(), c.State())
			assert.False(t, c.Polling())

			time.Sleep(3 * testPoll)
			assert.Equal(t, initialState(), c.State())
		})
	}

	t.Run("completed job", func(t *testing.T) {
		fb := &fakeBackend{progress: func(context.Context, int) (backend.Progress, error) {
			return backend.Progress{Status: backend.StatusCompleted, Percent: 100, OutputFile: "book.mp3"}, nil
		}}
		c := newController(t, fb)
		toReview(t, c)
		require.NoError(t, c.Convert(context.Background()))
		waitTerminal(t, c)

		require.NoError(t, c.Reset())
		assert.Equal(t, initialState(), c.State())
	})
}

func TestScenario_BookToAudiobook(t *testing.T) {
	progress := []backend.Progress{
		{Status: backend.StatusRunning, Percent: 30, Message: "Synthesizing"},
		{Status: backend.StatusRunning, Percent: 70, Message: "Synthesizing"},
		{Status: backend.StatusCompleted, Percent: 100, Message: "Done", OutputFile: "book.mp3"},
	}
	fb := &fakeBackend{
		extract: func(_ context.Context, f backend.File) (string, error) {
			assert.Equal(t, "book.epub", f.Name)
			return "Chapter 1...", nil
		},
		convert: func(_ context.Context, text, filename string) (string, error) {
			assert.Equal(t, "Chapter 1 edited", text)
			assert.Equal(t, "book.epub", filename)
			return "42", nil
		},
		progress: func(_ context.Context, n int) (backend.Progress, error) {
			return progress[min(n, len(progress))-1], nil
		},
	}

	var mu sync.Mutex
	var percents []int
	c, err := New(Config{
		Backend:      fb,
		PollInterval: testPoll,
		OnChange: func(s State) {
			if s.ActiveJob != nil {
				mu.Lock()
				percents = append(percents, s.ActiveJob.ProgressPercent)
				mu.Unlock()
			}
		},
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SelectFile("book.epub", []byte("PK")))
	require.NoError(t, c.Extract(context.Background()))
	s := c.State()
	assert.Equal(t, StageReview, s.Stage)
	assert.Equal(t, "Chapter 1...", s.ExtractedText)

	require.NoError(t, c.EditText("Chapter 1 edited"))
	require.NoError(t, c.Convert(context.Background()))
	s = c.State()
	assert.Equal(t, StageConverting, s.Stage)
	require.NotNil(t, s.ActiveJob)
	assert.Equal(t, "42", s.ActiveJob.ID)

	s = waitTerminal(t, c)
	assert.Equal(t, backend.StatusCompleted, s.ActiveJob.Status)
	assert.Equal(t, 100, s.ActiveJob.ProgressPercent)
	assert.Equal(t, "book.mp3", s.ActiveJob.OutputFile)
	assert.False(t, s.Busy)
	assert.Nil(t, s.LastError)
	assert.Equal(t, 3, fb.calls())

	mu.Lock()
	if len(percents) > 0 && percents[0] == 0 {
		percents = percents[1:]
	}
	assert.Equal(t, []int{30, 70, 100, 100}, percents)
	mu.Unlock()

	loc, err := c.DownloadLocation()
	require.NoError(t, err)
	assert.Equal(t, "http://backend/download/book.mp3", loc)
	assert.Equal(t, "book.mp3", c.OutputFileName())
}

func TestExportText(t *testing.T) {
	c := newController(t, &fakeBackend{})
	assert.Equal(t, "extracted_text.txt", c.ExportFileName())

	toReview(t, c)
	require.NoError(t, c.EditText("Chapter 1 edited"))

	var buf bytes.Buffer
	require.NoError(t, c.ExportText(&buf))
	assert.Equal(t, "Chapter 1 edited", buf.String())
	assert.Equal(t, "book.txt", c.ExportFileName())
}

type fakeRevealer struct {
	result   desktop.Result
	revealed []string
	opened   []string
}

func (f *fakeRevealer) ShowItemInFolder(path string) desktop.Result {
	f.revealed = append(f.revealed, path)
	return f.result
}

func (f *fakeRevealer) Open(path string) desktop.Result {
	f.opened = append(f.opened, path)
	return f.result
}

func TestDeliver(t *testing.T) {
	completedController := func(t *testing.T) *Controller {
		fb := &fakeBackend{progress: func(context.Context, int) (backend.Progress, error) {
			return backend.Progress{Status: backend.StatusCompleted, Percent: 100, OutputFile: "book.mp3"}, nil
		}}
		c := newController(t, fb)
		toReview(t, c)
		require.NoError(t, c.Convert(context.Background()))
		waitTerminal(t, c)
		return c
	}

	t.Run("no host capability", func(t *testing.T) {
		c := completedController(t)
		d, err := c.Deliver(nil, "/tmp/book.mp3")
		require.NoError(t, err)
		assert.Equal(t, DeliveryDownload, d.Method)
		assert.Equal(t, "http://backend/download/book.mp3", d.Locator)
	})

	t.Run("reveal succeeds", func(t *testing.T) {
		c := completedController(t)
		host := &fakeRevealer{result: desktop.Result{Success: true}}
		d, err := c.Deliver(host, "/tmp/book.mp3")
		require.NoError(t, err)
		assert.Equal(t, DeliveryReveal, d.Method)
		assert.Equal(t, []string{"/tmp/book.mp3"}, host.revealed)
		assert.Empty(t, host.opened)
	})

	t.Run("open plays the saved copy", func(t *testing.T) {
		c := completedController(t)
		host := &fakeRevealer{result: desktop.Result{Success: true}}
		d, err := c.DeliverOpen(host, "/tmp/book.mp3")
		require.NoError(t, err)
		assert.Equal(t, DeliveryOpen, d.Method)
		assert.Equal(t, "/tmp/book.mp3", d.Path)
		assert.Equal(t, []string{"/tmp/book.mp3"}, host.opened)
		assert.Empty(t, host.revealed)
	})

	t.Run("open fails falls back", func(t *testing.T) {
		c := completedController(t)
		host := &fakeRevealer{result: desktop.Result{Error: "no player"}}
		d, err := c.DeliverOpen(host, "/tmp/book.mp3")
		require.NoError(t, err)
		assert.Equal(t, DeliveryDownload, d.Method)
		assert.Equal(t, "no player", d.RevealError)
	})

	t.Run("reveal fails falls back", func(t *testing.T) {
		c := completedController(t)
		before := c.State()
		host := &fakeRevealer{result: desktop.Result{Error: "no file manager"}}
		d, err := c.Deliver(host, "/tmp/book.mp3")
		require.NoError(t, err)
		assert.Equal(t, DeliveryDownload, d.Method)
		assert.Equal(t, "no file manager", d.RevealError)
		assert.Equal(t, before, c.State())
	})

	t.Run("not ready", func(t *testing.T) {
		c := newController(t, &fakeBackend{})
		toReview(t, c)
		require.NoError(t, c.Convert(context.Background()))
		_, err := c.Deliver(nil, "")
		assert.True(t, failure.Is(err, failure.InvalidInput))
	})
}

func TestAllowed(t *testing.T) {
	upload := State{Stage: StageUpload}
	assert.True(t, upload.Allowed(ActionSelectFile))
	assert.False(t, upload.Allowed(ActionExtract))
	assert.False(t, upload.Allowed(ActionBack))
	assert.True(t, upload.Allowed(ActionReset))

	review := State{Stage: StageReview, ExtractedText: "x"}
	assert.True(t, review.Allowed(ActionConvert))
	assert.True(t, review.Allowed(ActionExportText))
	assert.False(t, review.Allowed(ActionSelectFile))

	busy := review
	busy.Busy = true
	for a := ActionSelectFile; a <= ActionDownload; a++ {
		assert.False(t, busy.Allowed(a), a.String())
	}
}
