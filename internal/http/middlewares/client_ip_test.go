package middlewares

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/rate"
)

func clientIPOf(t *testing.T, trusted []netip.Prefix, remote string, xff ...string) string {
	t.Helper()
	var got string
	h := WithClientIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for _, v := range xff {
		req.Header.Add("X-Forwarded-For", v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientIP_IgnoresForwardedFromUntrustedPeer(t *testing.T) {
	assert.Equal(t, "203.0.113.9", clientIPOf(t, nil, "203.0.113.9:5555", "1.2.3.4"))

	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	assert.Equal(t, "203.0.113.9", clientIPOf(t, trusted, "203.0.113.9:5555", "1.2.3.4"))
}

func TestClientIP_TrustedProxyChain(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	assert.Equal(t, "198.51.100.7", clientIPOf(t, trusted, "10.0.0.2:443", "198.51.100.7"))
	// el cliente puede anteponer lo que quiera; cuenta el salto que agregó el proxy
	assert.Equal(t, "198.51.100.7", clientIPOf(t, trusted, "10.0.0.2:443", "1.2.3.4, 198.51.100.7, 10.0.0.5"))
	assert.Equal(t, "198.51.100.7", clientIPOf(t, trusted, "10.0.0.2:443", "1.2.3.4", "198.51.100.7"))
	assert.Equal(t, "10.0.0.2", clientIPOf(t, trusted, "10.0.0.2:443", "not-an-ip"))
	assert.Equal(t, "10.0.0.2", clientIPOf(t, trusted, "10.0.0.2:443"))
}

func TestClientIP_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestRateLimit_RotatingForwardedForDoesNotReset(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), WithClientIP(nil), WithRateLimit(rate.NewMemoryLimiter(2, time.Minute), IPRateKey))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/validate/check", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		req.Header.Set("X-Forwarded-For", "192.0.2."+strconv.Itoa(i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Len(t, codes, 4)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
