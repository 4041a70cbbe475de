package util

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/factloop/internal/model"
)

// NewProxyFunc creates a proxy function based on configuration.
// Hosts matching noProxy bypass the configured proxies. Without proxy URLs
// the environment decides.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	bypass := splitNoProxy(noProxy)

	return func(req *http.Request) (*url.URL, error) {
		if bypassed(req.URL.Hostname(), bypass) {
			return nil, nil
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

func splitNoProxy(noProxy string) []string {
	var out []string
	for _, h := range strings.Split(noProxy, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, strings.ToLower(h))
		}
	}
	return out
}

func bypassed(host string, bypass []string) bool {
	host = strings.ToLower(host)
	for _, b := range bypass {
		if b == "*" || host == b || strings.HasSuffix(host, "."+strings.TrimPrefix(b, ".")) {
			return true
		}
	}
	return false
}

// Waiter delays requests, typically per host
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// NewTransport builds the outbound transport with proxy settings from cfg
func NewTransport(cfg model.HTTPConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	return t
}

// NewHTTPClient builds the client shared by upstream integrations. Requests
// carry cfg.UserAgent and wait on limiter when one is given.
func NewHTTPClient(cfg model.HTTPConfig, limiter Waiter) *http.Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: WrapTransport(NewTransport(cfg), cfg.UserAgent, limiter),
	}
}

// WrapTransport adds the user agent and rate limiting to base
func WrapTransport(base http.RoundTripper, userAgent string, limiter Waiter) http.RoundTripper {
	return &clientTransport{base: base, userAgent: userAgent, limiter: limiter}
}

type clientTransport struct {
	base      http.RoundTripper
	userAgent string
	limiter   Waiter
}

func (t *clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context(), req.URL.String()); err != nil {
			return nil, err
		}
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}
