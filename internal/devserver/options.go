package devserver

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/wolfeidau/buildplan/internal/plan"
)

const (
	// LiveReloadPath is the server-sent events endpoint browsers subscribe to.
	LiveReloadPath = "/__buildplan/livereload"

	DefaultHost = "localhost"
	DefaultPort = 3000
)

// Options configures the dev server. It is usually built from the
// devServerOptions section with OptionsFromPlan.
type Options struct {
	Host string
	Port int
	// Directories static files are served from, relative to WorkDir
	ContentBase []string
	// Directory relative paths and watch globs are resolved against
	WorkDir        string
	Compress       bool
	LiveReload     bool
	Open           bool
	AllowedOrigins []string
	// Globs relative to WorkDir, a change to a matching file sends content-changed
	WatchFiles []string
	Proxy      []ProxyRule
}

// ProxyRule forwards requests matching Context to Target when no static file exists.
type ProxyRule struct {
	// "*" matches every request, anything else is a path prefix
	Context      string
	Target       *url.URL
	ChangeOrigin bool
	// When false upstream TLS certificates are not verified
	Secure      bool
	AutoRewrite bool
	Headers     map[string]string
}

// Matches reports whether the rule applies to a request path.
func (r ProxyRule) Matches(p string) bool {
	if r.Context == "" || r.Context == "*" || r.Context == "**" {
		return true
	}
	return strings.HasPrefix(p, r.Context)
}

// Addr is the host:port the server listens on.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// URL is the address a browser should open.
func (o Options) URL() string {
	host := o.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = DefaultHost
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(o.Port)) + "/"
}

// OptionsFromPlan reads devServerOptions. Values substituted from missing
// environment variables arrive as empty strings and fall back to defaults.
func OptionsFromPlan(bp plan.BuildPlan) (Options, error) {
	section := bp.Mapping(plan.SectionDevServer)

	opts := Options{
		Host: DefaultHost,
		Port: DefaultPort,
	}

	if host, ok := section.Str("host"); ok && host != "" {
		opts.Host = host
	}
	if raw, ok := section.Str("port"); ok && raw != "" {
		port, ok := section.Int("port")
		if !ok || port < 0 || port > 65535 {
			return Options{}, fmt.Errorf("%w: port %q", ErrInvalidOptions, raw)
		}
		opts.Port = port
	}

	opts.ContentBase = contentBase(section)
	if len(opts.ContentBase) == 0 {
		if dir, ok := bp.Mapping(plan.SectionOutput).Str("path"); ok && dir != "" {
			opts.ContentBase = []string{dir}
		}
	}

	opts.Compress, _ = section.Bool("compress")
	opts.Open, _ = section.Bool("open")

	hot, _ := section.Bool("hot")
	liveReload, _ := section.Bool("liveReload")
	opts.LiveReload = hot || liveReload

	opts.AllowedOrigins = section.Strings("allowedOrigins")
	opts.WatchFiles = watchFiles(section)

	rules, err := proxyRules(section)
	if err != nil {
		return Options{}, err
	}
	opts.Proxy = rules

	return opts, nil
}

func contentBase(section plan.Mapping) []string {
	if dirs := section.Strings("contentBase"); len(dirs) > 0 {
		return dirs
	}
	if static, ok := section.Map("static"); ok {
		return static.Strings("directory")
	}
	return section.Strings("static")
}

// watchFiles accepts a glob, a list of globs or a mapping with paths.
func watchFiles(section plan.Mapping) []string {
	if m, ok := section.Map("watchFiles"); ok {
		return m.Strings("paths")
	}
	return section.Strings("watchFiles")
}

// proxyRules accepts a single rule with a target, or a mapping of path context
// to rule as used by existing plans ({"*": {target: ...}}).
func proxyRules(section plan.Mapping) ([]ProxyRule, error) {
	proxy, ok := section.Map("proxy")
	if !ok {
		return nil, nil
	}

	if _, ok := proxy["target"]; ok {
		rule, err := proxyRule("*", proxy)
		if err != nil {
			return nil, err
		}
		if rule.Target == nil {
			return nil, nil
		}
		return []ProxyRule{rule}, nil
	}

	var rules []ProxyRule
	for _, context := range proxy.Keys() {
		m, ok := proxy.Map(context)
		if !ok {
			return nil, fmt.Errorf("%w: proxy %q is a %s", ErrInvalidOptions, context, proxy[context].Kind())
		}
		rule, err := proxyRule(context, m)
		if err != nil {
			return nil, err
		}
		if rule.Target != nil {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// proxyRule parses one rule. An empty target leaves Target nil so callers can
// drop the rule, which happens when the target came from an unset variable.
func proxyRule(context string, m plan.Mapping) (ProxyRule, error) {
	rule := ProxyRule{Context: context}

	target, _ := m.Str("target")
	if target != "" {
		u, err := url.Parse(target)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ProxyRule{}, fmt.Errorf("%w: %q", ErrInvalidProxyTarget, target)
		}
		rule.Target = u
	}

	rule.ChangeOrigin, _ = m.Bool("changeOrigin")
	rule.AutoRewrite, _ = m.Bool("autoRewrite")
	rule.Secure = true
	if secure, ok := m.Bool("secure"); ok {
		rule.Secure = secure
	}

	if headers, ok := m.Map("headers"); ok {
		rule.Headers = map[string]string{}
		for _, k := range headers.Keys() {
			rule.Headers[k], _ = headers.Str(k)
		}
	}

	return rule, nil
}
