package aa

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Request is one outbound API call. Cookies are sent as a single Cookie header.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Cookies map[string]string
}

// Response is the status and body of an API call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends requests over one session. A session is never shared between
// concurrent branches.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// SessionFactory opens a fresh, branch-local transport session.
type SessionFactory func() (Transport, error)

// TransportConfig tunes HTTP sessions.
type TransportConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	// Fingerprint names the browser ClientHello to present. Defaults to firefox.
	Fingerprint string
	// RootCAs overrides the system roots.
	RootCAs *x509.CertPool
}

var fingerprints = map[string]utls.ClientHelloID{
	"firefox": utls.HelloFirefox_120,
	"chrome":  utls.HelloChrome_120,
}

// HTTPSession is a Transport with its own connection pool and TLS state.
type HTTPSession struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPSessionFactory returns a factory producing independent HTTPSessions.
func NewHTTPSessionFactory(cfg TransportConfig) SessionFactory {
	return func() (Transport, error) {
		return NewHTTPSession(cfg)
	}
}

// NewHTTPSession creates a session whose http.Transport is not shared with any other.
// HTTPS connections are dialed with a browser TLS fingerprint.
func NewHTTPSession(cfg TransportConfig) (*HTTPSession, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = "firefox"
	}
	hello, ok := fingerprints[cfg.Fingerprint]
	if !ok {
		return nil, fmt.Errorf("unknown TLS fingerprint %q", cfg.Fingerprint)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tlsDialer := &fingerprintDialer{
		dialer:           dialer,
		hello:            hello,
		rootCAs:          cfg.RootCAs,
		handshakeTimeout: 10 * time.Second,
	}
	rt := &http.Transport{
		DialContext:           dialer.DialContext,
		DialTLSContext:        tlsDialer.DialTLSContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &HTTPSession{
		client: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		maxBody: cfg.MaxBodyBytes,
	}, nil
}

// fingerprintDialer opens TLS connections whose ClientHello matches a browser.
type fingerprintDialer struct {
	dialer           *net.Dialer
	hello            utls.ClientHelloID
	rootCAs          *x509.CertPool
	handshakeTimeout time.Duration
}

func (d *fingerprintDialer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	spec, err := utls.UTLSIdToSpec(d.hello)
	if err != nil {
		return nil, fmt.Errorf("error building %s client hello: %w", d.hello.Str(), err)
	}
	// net/http only speaks HTTP/2 over *tls.Conn, so offer HTTP/1.1 alone.
	for i, ext := range spec.Extensions {
		if _, ok := ext.(*utls.ALPNExtension); ok {
			spec.Extensions[i] = &utls.ALPNExtension{AlpnProtocols: []string{"http/1.1"}}
		}
	}

	raw, err := d.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	conn := utls.UClient(raw, &utls.Config{ServerName: host, RootCAs: d.rootCAs}, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		raw.Close()
		return nil, fmt.Errorf("error applying client hello: %w", err)
	}

	hsCtx, cancel := context.WithTimeout(ctx, d.handshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake with %s failed: %w", addr, err)
	}
	return conn, nil
}

// Send performs the request and reads the whole body
func (s *HTTPSession) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Close drops the session's idle connections
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
