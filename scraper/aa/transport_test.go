package aa

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHelloServer starts a TLS server that records the ClientHello of every handshake.
func newHelloServer(t *testing.T) (*httptest.Server, func() []*tls.ClientHelloInfo) {
	t.Helper()
	var (
		mu     sync.Mutex
		hellos []*tls.ClientHelloInfo
	)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, _ := r.Cookie("spa_session_id")
		if cookie != nil {
			w.Header().Set("X-Session", cookie.Value)
		}
		w.Write([]byte(r.Proto))
	}))
	srv.TLS = &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			mu.Lock()
			hellos = append(hellos, hello)
			mu.Unlock()
			return nil, nil
		},
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	return srv, func() []*tls.ClientHelloInfo {
		mu.Lock()
		defer mu.Unlock()
		return append([]*tls.ClientHelloInfo(nil), hellos...)
	}
}

func serverRoots(srv *httptest.Server) *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return pool
}

func TestHTTPSession_PresentsBrowserClientHello(t *testing.T) {
	srv, hellos := newHelloServer(t)

	s, err := NewHTTPSession(TransportConfig{Timeout: 5 * time.Second, RootCAs: serverRoots(srv)})
	require.NoError(t, err)
	defer s.Close()

	resp, err := s.Send(context.Background(), &Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Cookies: map[string]string{"spa_session_id": "sess-123"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HTTP/1.1", string(resp.Body))
	assert.Equal(t, "sess-123", resp.Header.Get("X-Session"))

	got := hellos()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"http/1.1"}, got[0].SupportedProtos)
	// Firefox orders ChaCha20 ahead of AES-256, unlike Go's own client.
	require.GreaterOrEqual(t, len(got[0].CipherSuites), 3)
	assert.Equal(t, tls.TLS_AES_128_GCM_SHA256, got[0].CipherSuites[0])
	assert.Equal(t, tls.TLS_CHACHA20_POLY1305_SHA256, got[0].CipherSuites[1])
	assert.Contains(t, got[0].SupportedVersions, uint16(tls.VersionTLS13))
}

func TestHTTPSession_SessionsDoNotShareConnections(t *testing.T) {
	srv, hellos := newHelloServer(t)
	cfg := TransportConfig{Timeout: 5 * time.Second, RootCAs: serverRoots(srv)}

	for i := 0; i < 2; i++ {
		s, err := NewHTTPSession(cfg)
		require.NoError(t, err)
		for j := 0; j < 2; j++ {
			_, err := s.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
			require.NoError(t, err)
		}
		s.Close()
	}

	// One handshake per session; requests within a session reuse its connection.
	assert.Len(t, hellos(), 2)
}

func TestHTTPSession_RejectsUntrustedServer(t *testing.T) {
	srv, _ := newHelloServer(t)

	s, err := NewHTTPSession(TransportConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	assert.Error(t, err)
}

func TestNewHTTPSession_UnknownFingerprint(t *testing.T) {
	_, err := NewHTTPSession(TransportConfig{Fingerprint: "netscape"})
	assert.ErrorContains(t, err, "unknown TLS fingerprint")

	_, err = NewHTTPSessionFactory(TransportConfig{Fingerprint: "netscape"})()
	assert.Error(t, err)
}
