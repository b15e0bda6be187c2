package devserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type inboundHostKey struct{}

// newProxy builds a reverse proxy for one rule.
func newProxy(rule ProxyRule) *httputil.ReverseProxy {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !rule.Secure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(rule.Target)
			pr.SetXForwarded()
			if !rule.ChangeOrigin {
				pr.Out.Host = pr.In.Host
			}
			for k, v := range rule.Headers {
				pr.Out.Header.Set(k, v)
			}
			pr.Out = pr.Out.WithContext(context.WithValue(pr.Out.Context(), inboundHostKey{}, pr.In.Host))

			telemetry.GetMetrics().ProxyRequestsTotal.Add(pr.In.Context(), 1,
				metric.WithAttributes(attribute.String("target", rule.Target.Host)))
		},
		ModifyResponse: func(resp *http.Response) error {
			if rule.AutoRewrite {
				rewriteLocation(resp, rule.Target)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn().Err(err).Str("path", r.URL.Path).Str("target", rule.Target.String()).Msg("Proxy request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// rewriteLocation points redirects issued by the upstream back at the dev server.
func rewriteLocation(resp *http.Response, target *url.URL) {
	location := resp.Header.Get("Location")
	if location == "" || resp.Request == nil {
		return
	}
	inbound, _ := resp.Request.Context().Value(inboundHostKey{}).(string)
	if inbound == "" {
		return
	}

	u, err := url.Parse(location)
	if err != nil || u.Host != target.Host {
		return
	}
	u.Host = inbound
	u.Scheme = "http"
	resp.Header.Set("Location", u.String())
}

// waitForUpstream dials the proxy target until it accepts connections or
// maxElapsed passes.
func waitForUpstream(ctx context.Context, target *url.URL, maxElapsed time.Duration) error {
	addr := target.Host
	if target.Port() == "" {
		port := "80"
		if target.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(target.Hostname(), port)
	}

	dialer := &net.Dialer{Timeout: time.Second}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, conn.Close()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Str("target", addr).Dur("next_retry", next).Msg("Waiting for proxy target")
		}),
	)
	return err
}
