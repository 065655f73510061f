package scheduler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	chanhttp "github.com/k1rakishou/chanfetch/internal/downloaders/http"
	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/k1rakishou/chanfetch/internal/output"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boardServer(t *testing.T, files map[string][]byte, block <-chan struct{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if block != nil && r.Method == http.MethodGet {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func newEngine(t *testing.T, root string) *engine.Engine {
	t.Helper()
	d := chanhttp.New(utils.NewChanfetchHTTPClient(utils.HTTPClientConfig{}))
	e := engine.New(d,
		engine.WithSiteProvider(d),
		engine.WithResolver(engine.DirResolver{Root: root}),
		engine.WithMinChunkSize(1024),
		engine.WithLogger(zerolog.Nop()),
	)
	t.Cleanup(e.Close)
	return e
}

func TestRunDownloadsAllAndJoinsErrors(t *testing.T) {
	webm := bytes.Repeat([]byte("webm"), 4096)
	png := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 300)
	sum := md5.Sum(png)
	server := boardServer(t, map[string][]byte{
		"/g/1700000000000.webm": webm,
		"/g/1700000000001.png":  png,
	}, nil)
	root := t.TempDir()
	var buf bytes.Buffer
	out := output.NewManager(&buf)

	s := New(newEngine(t, root), out, 4, nil)
	err := s.Run(t.Context(), []Entry{
		{Link: server.URL + "/g/1700000000000.webm", Dirs: []string{"g", "98765432"}},
		{Link: server.URL + "/g/1700000000001.png", OutputPath: "logo.png", Hash: base64.StdEncoding.EncodeToString(sum[:])},
		{Link: server.URL + "/g/404.jpg"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "404.jpg")
	assert.ErrorIs(t, err, engine.ErrChunkTransport)

	got, readErr := os.ReadFile(filepath.Join(root, "g", "98765432", "1700000000000.webm"))
	require.NoError(t, readErr)
	assert.Equal(t, webm, got)
	assert.FileExists(t, filepath.Join(root, "logo.png"))

	succeeded, failed := out.Counts()
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
}

func TestRunCancelStopsDownloads(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	server := boardServer(t, map[string][]byte{"/g/slow.webm": make([]byte, 8192)}, block)
	root := t.TempDir()
	out := output.NewManager(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(100*time.Millisecond, cancel)
	err := New(newEngine(t, root), out, 2, nil).Run(ctx, []Entry{{Link: server.URL + "/g/slow.webm"}})
	require.ErrorIs(t, err, engine.ErrCanceled)

	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "no output and no temp dir after cancel")
}

func TestReadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thread.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- link: https://i.example/g/1.webm
  dirs: [g, "123"]
  size: 2048
  hash: 1B2M2Y8AsgTpgAmY7PhCfg==
- link: s3://archive/g/2.png
  op: two.png
  algo: sha256
  connections: 2
`), 0644))

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"g", "123"}, entries[0].Dirs)
	assert.Equal(t, engine.ExtraInfo{FileSize: 2048, FileHash: "1B2M2Y8AsgTpgAmY7PhCfg=="}, entries[0].Extra())
	assert.Equal(t, "two.png", entries[1].OutputPath)
	assert.Equal(t, engine.HashSHA256, entries[1].Extra().HashAlgorithm)
	assert.Equal(t, 2, entries[1].Connections)

	require.NoError(t, os.WriteFile(path, []byte("- op: nolink.png\n"), 0644))
	_, err = ReadEntries(path)
	assert.ErrorContains(t, err, "missing link")

	require.NoError(t, os.WriteFile(path, []byte("- link: https://i.example/a\n  algo: crc32\n"), 0644))
	_, err = ReadEntries(path)
	assert.ErrorContains(t, err, "unsupported hash algorithm")
}
