package devserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/buildplan/internal/assets"
)

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o750))
	require.NoError(t, os.WriteFile(name, []byte(content), 0600))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv, err := New(opts, nil)
	require.NoError(t, err)
	handler, err := srv.Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, rawURL string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_static(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dist", "index.html"), "<html>dist</html>")
	writeFile(t, filepath.Join(dir, "dist", "main.js"), "console.log(1)")
	writeFile(t, filepath.Join(dir, "public", "robots.txt"), "robots")
	writeFile(t, filepath.Join(dir, "dist", "assets", "logo.svg"), "<svg/>")

	ts := newTestServer(t, Options{WorkDir: dir, ContentBase: []string{"dist", "public"}})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/", status: http.StatusOK, body: "<html>dist</html>"},
		{path: "/main.js", status: http.StatusOK, body: "console.log(1)"},
		{path: "/robots.txt", status: http.StatusOK, body: "robots"},
		{path: "/assets/", status: http.StatusNotFound},
		{path: "/missing.js", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, ts.URL+tt.path, nil)
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				require.Equal(t, tt.body, body)
			}
		})
	}
}

func TestServer_proxyFallthrough(t *testing.T) {
	var gotHost, gotHeader string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotHeader = r.Header.Get("X-ProxiedBy-Webpack")
		if r.URL.Path == "/login" {
			http.Redirect(w, r, "http://"+r.Host+"/dashboard", http.StatusFound)
			return
		}
		_, _ = io.WriteString(w, "upstream "+r.URL.Path)
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dist", "main.js"), "bundle")

	target := mustParse(t, upstream.URL)
	ts := newTestServer(t, Options{
		WorkDir:     dir,
		ContentBase: []string{"dist"},
		Proxy: []ProxyRule{{
			Context:      "*",
			Target:       target,
			ChangeOrigin: true,
			AutoRewrite:  true,
			Headers:      map[string]string{"X-ProxiedBy-Webpack": "true"},
		}},
	})

	_, body := get(t, ts.URL+"/main.js", nil)
	require.Equal(t, "bundle", body)

	resp, body := get(t, ts.URL+"/index.php", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "upstream /index.php", body)
	require.Equal(t, target.Host, gotHost)
	require.Equal(t, "true", gotHeader)

	resp, _ = get(t, ts.URL+"/login", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "http://"+mustParse(t, ts.URL).Host+"/dashboard", resp.Header.Get("Location"))
}

func TestServer_proxyKeepsHost(t *testing.T) {
	var gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
	}))
	t.Cleanup(upstream.Close)

	ts := newTestServer(t, Options{
		WorkDir: t.TempDir(),
		Proxy:   []ProxyRule{{Context: "/api", Target: mustParse(t, upstream.URL)}},
	})

	resp, _ := get(t, ts.URL+"/api/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, mustParse(t, ts.URL).Host, gotHost)

	resp, _ = get(t, ts.URL+"/other", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_proxyUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ts := newTestServer(t, Options{
		WorkDir: t.TempDir(),
		Proxy:   []ProxyRule{{Context: "*", Target: mustParse(t, "http://"+addr)}},
	})

	resp, _ := get(t, ts.URL+"/", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestServer_compressAndCORS(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dist", "main.js"), strings.Repeat("console.log('compress me');\n", 200))

	ts := newTestServer(t, Options{
		WorkDir:        dir,
		ContentBase:    []string{"dist"},
		Compress:       true,
		AllowedOrigins: []string{"http://example.com"},
	})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/main.js", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	require.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNew_invalidProxy(t *testing.T) {
	_, err := New(Options{Proxy: []ProxyRule{{Context: "*"}}}, nil)
	require.ErrorIs(t, err, ErrInvalidProxyTarget)
}

func TestHub_liveReload(t *testing.T) {
	srv, err := New(Options{WorkDir: t.TempDir(), LiveReload: true}, nil)
	require.NoError(t, err)
	handler, err := srv.Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+LiveReloadPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.onRebuild(&assets.BuildResult{ID: "build-1"}, nil)

	lines := readEvent(t, bufio.NewReader(resp.Body))
	require.Equal(t, []string{"id: build-1", "event: reload", "data: reload"}, lines)

	srv.Hub().Broadcast(ctx, EventContentChanged, "index.php")

	lines = readEvent(t, bufio.NewReader(resp.Body))
	require.Equal(t, []string{"id: index.php", "event: content-changed", "data: content-changed"}, lines)

	cancel()
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// readEvent returns the next non-comment event block.
func readEvent(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, ":") {
			continue
		}
		if line == "" {
			if len(lines) > 0 {
				return lines
			}
			continue
		}
		lines = append(lines, line)
	}
}

func TestWaitForUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(upstream.Close)

	require.NoError(t, waitForUpstream(context.Background(), mustParse(t, upstream.URL), time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	require.Error(t, waitForUpstream(context.Background(), mustParse(t, "http://"+addr), 300*time.Millisecond))
}
