package download

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/launchkit/launchkit/internal/adapter/filesystem"
	"github.com/launchkit/launchkit/internal/task"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 10 * time.Second
	testTick    = 5 * time.Millisecond
)

func waitDone(t *testing.T, tk task.Task) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(testTimeout):
		t.Fatalf("task %s did not complete (status %s)", tk.ID(), tk.Status())
	}
}

func randomBytes(n int, seed int64) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func newTestEnv(t *testing.T) (Env, *filesystem.Manager) {
	t.Helper()
	fs, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)
	return Env{FS: fs}, fs
}

// newRangeServer serves files by url path with Range support
func newRangeServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, path.Base(r.URL.Path), time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stallServer announces a resource of size bytes, sends a little of every
// range and then holds the connection until the client goes away.
type stallServer struct {
	*httptest.Server
	size     int64
	started  chan struct{}
	once     sync.Once
	released chan struct{}
}

func newStallServer(t *testing.T, size int64) *stallServer {
	t.Helper()
	s := &stallServer{
		size:     size,
		started:  make(chan struct{}),
		released: make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		close(s.released)
		s.Close()
	})
	return s
}

func (s *stallServer) handle(w http.ResponseWriter, r *http.Request) {
	flusher, _ := w.(http.Flusher)
	if r.Header.Get("Range") == "" {
		w.Header().Set("Content-Length", itoa(s.size))
		w.WriteHeader(http.StatusOK)
	} else {
		var start, end int64
		_, _ = fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end)
		w.Header().Set("Content-Range", "bytes "+itoa(start)+"-"+itoa(end)+"/"+itoa(s.size))
		w.Header().Set("Content-Length", itoa(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(make([]byte, 16))
	}
	if flusher != nil {
		flusher.Flush()
	}
	if r.Header.Get("Range") != "" {
		s.once.Do(func() { close(s.started) })
	}
	select {
	case <-r.Context().Done():
	case <-s.released:
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
