package devserver

import (
	"net/http"
	"net/http/httputil"
	"os"
	"path"
	"path/filepath"
)

type proxyRoute struct {
	rule  ProxyRule
	proxy *httputil.ReverseProxy
}

// staticHandler serves files from the content base directories in order and
// falls through to the first matching proxy rule when nothing is found.
type staticHandler struct {
	roots  []string
	routes []proxyRoute
}

func newStaticHandler(roots []string, rules []ProxyRule) *staticHandler {
	h := &staticHandler{roots: roots}
	for _, rule := range rules {
		h.routes = append(h.routes, proxyRoute{rule: rule, proxy: newProxy(rule)})
	}
	return h
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if name, ok := h.lookup(r.URL.Path); ok {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, name)
			return
		}
	}

	for _, route := range h.routes {
		if route.rule.Matches(r.URL.Path) {
			route.proxy.ServeHTTP(w, r)
			return
		}
	}

	http.NotFound(w, r)
}

// lookup finds the file for a request path, using index.html for directories.
func (h *staticHandler) lookup(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)

	for _, root := range h.roots {
		name := filepath.Join(root, filepath.FromSlash(clean))
		info, err := os.Stat(name)
		if err != nil {
			continue
		}
		if info.IsDir() {
			index := filepath.Join(name, "index.html")
			if _, err := os.Stat(index); err == nil {
				return index, true
			}
			continue
		}
		return name, true
	}

	return "", false
}
