package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/mogiioin/hls-proxy/internal/config"
	"github.com/mogiioin/hls-proxy/internal/headers"
	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/upstream"
	"github.com/mogiioin/hls-proxy/m3u8"
)

const masterPlaylist = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\n360p/index.m3u8\n#EXT-X-KEY:METHOD=AES-128,URI=\"/keys/k.bin\"\n"

// newProxy returns the proxy routes backed by a real upstream client.
func newProxy(cfg config.Config) http.Handler {
	client := upstream.New(upstream.Options{Timeout: 2 * time.Second}, logging.Discard())
	return NewServer(cfg, client, logging.Discard()).Routes()
}

// get performs a GET through h.
func get(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func proxyPath(route m3u8.Route, target, token string) string {
	return string(route) + "?url=" + url.QueryEscape(target) + "&headers=" + url.QueryEscape(token)
}

func assertCORS(is *is.I, w *httptest.ResponseRecorder) {
	is.Equal(w.Header().Get("Access-Control-Allow-Origin"), "*")                                                      // allow origin
	is.Equal(w.Header().Get("Access-Control-Allow-Methods"), "GET, OPTIONS")                                          // allow methods
	is.Equal(w.Header().Get("Access-Control-Allow-Headers"), "Origin, X-Requested-With, Content-Type, Accept, Range") // allow headers
}

func TestManifestRewrite(t *testing.T) {
	is := is.New(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-mpegURL")
		_, _ = io.WriteString(w, masterPlaylist)
	}))
	defer origin.Close()

	w := get(newProxy(config.Default()), proxyPath(m3u8.RouteM3U8, origin.URL+"/live/master.m3u8", ""), nil)
	is.Equal(w.Code, http.StatusOK)                                           // rewritten
	is.Equal(w.Header().Get("Content-Type"), "application/vnd.apple.mpegurl") // playlist type
	is.Equal(w.Header().Get("Content-Length"), strconv.Itoa(w.Body.Len()))    // length of the rewritten text
	assertCORS(is, w)

	lines := strings.Split(w.Body.String(), "\n")
	is.Equal(len(lines), 5) // four lines and a trailing blank
	is.Equal(lines[2], "/proxy/m3u8?url="+url.QueryEscape(origin.URL+"/live/360p/index.m3u8")+"&headers=")
	is.Equal(lines[3], `#EXT-X-KEY:METHOD=AES-128,URI="/proxy/key?url=`+url.QueryEscape(origin.URL+"/keys/k.bin")+`&headers="`)
}

func TestManifestPublicURL(t *testing.T) {
	is := is.New(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "seg0.ts")
	}))
	defer origin.Close()

	cfg := config.Default()
	cfg.PublicURL = "https://proxy.example.com/"
	w := get(newProxy(cfg), proxyPath(m3u8.RouteM3U8, origin.URL+"/a/index.m3u8", ""), nil)
	is.Equal(w.Code, http.StatusOK)                                                             // rewritten
	is.True(strings.HasPrefix(w.Body.String(), "https://proxy.example.com/proxy/segment?url=")) // absolute proxy URL
}

func TestManifestHeaderToken(t *testing.T) {
	is := is.New(t)
	var got http.Header
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, "seg0.ts\n")
	}))
	defer origin.Close()

	token := headers.Encode(headers.Map{"Referer": "https://player.example/", "X-Custom": "1"})
	w := get(newProxy(config.Default()), proxyPath(m3u8.RouteM3U8, origin.URL+"/a/index.m3u8", token), http.Header{
		"User-Agent": {"TestPlayer/1.0"},
	})
	is.Equal(w.Code, http.StatusOK)                         // rewritten
	is.Equal(got.Get("Referer"), "https://player.example/") // custom header wins
	is.Equal(got.Get("X-Custom"), "1")                      // extra header sent
	is.Equal(got.Get("User-Agent"), "TestPlayer/1.0")       // caller user agent forwarded
	is.Equal(got.Get("Accept-Language"), "en-US,en;q=0.9")  // default kept

	line := strings.Split(w.Body.String(), "\n")[0]
	u, err := url.Parse(line)
	is.NoErr(err)                             // rewritten line is a URL
	is.Equal(u.Query().Get("headers"), token) // token propagated verbatim
}

func TestManifestMalformedTokenIgnored(t *testing.T) {
	is := is.New(t)
	var referer string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		_, _ = io.WriteString(w, "#EXTM3U\n")
	}))
	defer origin.Close()

	w := get(newProxy(config.Default()), proxyPath(m3u8.RouteM3U8, origin.URL+"/a.m3u8", "{not json"), nil)
	is.Equal(w.Code, http.StatusOK) // malformed token is not an error
	is.Equal(referer, origin.URL)   // defaults apply
}

func TestManifestErrors(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.m3u8":
			http.NotFound(w, r)
		case "/empty.m3u8":
		default:
			_, _ = io.WriteString(w, "#EXTM3U\n")
		}
	}))
	defer origin.Close()
	h := newProxy(config.Default())

	cases := []struct {
		desc   string
		path   string
		status int
		body   string
	}{
		{"no url", "/proxy/m3u8", 400, "Missing url parameter"},
		{"empty url", "/proxy/m3u8?url=&headers=", 400, "Missing url parameter"},
		{"relative url", proxyPath(m3u8.RouteM3U8, "/a.m3u8", ""), 400, "Invalid url parameter: "},
		{"upstream 404", proxyPath(m3u8.RouteM3U8, origin.URL+"/missing.m3u8", ""), 404, "Upstream server error: 404 Not Found"},
		{"empty body", proxyPath(m3u8.RouteM3U8, origin.URL+"/empty.m3u8", ""), 500, "Empty M3U8 content received from all sources"},
		{"unreachable", proxyPath(m3u8.RouteM3U8, "http://127.0.0.1:1/a.m3u8", ""), 500, "Proxy error: "},
		{"segment without url", "/proxy/segment", 400, "Missing url parameter"},
		{"key without url", "/proxy/key?headers=%7B%7D", 400, "Missing url parameter"},
		{"segment upstream 404", proxyPath(m3u8.RouteSegment, origin.URL+"/missing.m3u8", ""), 404, "Upstream server error: 404 Not Found"},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			is := is.New(t)
			w := get(h, c.path, nil)
			is.Equal(w.Code, c.status)                          // status
			is.True(strings.HasPrefix(w.Body.String(), c.body)) // body
			assertCORS(is, w)
		})
	}
}

func TestSegmentRelay(t *testing.T) {
	is := is.New(t)
	payload := strings.Repeat("\x47segment", 1000)
	var referer, ua string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer, ua = r.Header.Get("Referer"), r.Header.Get("User-Agent")
		w.Header()["Content-Type"] = nil
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = io.WriteString(w, payload)
	}))
	defer origin.Close()

	w := get(newProxy(config.Default()), proxyPath(m3u8.RouteSegment, origin.URL+"/a/seg0.ts", ""), nil)
	is.Equal(w.Code, http.StatusOK)                                        // relayed
	is.Equal(w.Body.String(), payload)                                     // bytes unchanged
	is.Equal(w.Header().Get("Content-Type"), "video/MP2T")                 // default segment type
	is.Equal(w.Header().Get("Content-Length"), strconv.Itoa(len(payload))) // length mirrored
	is.Equal(referer, origin.URL)                                          // referer is the target origin
	is.Equal(ua, headers.DefaultUserAgent)                                 // default user agent
	assertCORS(is, w)
}

func TestKeyRelay(t *testing.T) {
	is := is.New(t)
	key := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	typed := false
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if typed {
			w.Header().Set("Content-Type", "binary/octet-stream")
		} else {
			w.Header()["Content-Type"] = nil
		}
		_, _ = w.Write(key)
	}))
	defer origin.Close()
	h := newProxy(config.Default())

	w := get(h, proxyPath(m3u8.RouteKey, origin.URL+"/k.bin", ""), nil)
	is.Equal(w.Code, http.StatusOK)                                      // relayed
	is.Equal(w.Body.Bytes(), key)                                        // key bytes unchanged
	is.Equal(w.Header().Get("Content-Type"), "application/octet-stream") // default key type

	typed = true
	w = get(h, proxyPath(m3u8.RouteKey, origin.URL+"/k.bin", ""), nil)
	is.Equal(w.Header().Get("Content-Type"), "binary/octet-stream") // upstream type mirrored
}

func TestRelayRange(t *testing.T) {
	is := is.New(t)
	var gotRange string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Range", "bytes 0-3/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, "0123")
	}))
	defer origin.Close()

	w := get(newProxy(config.Default()), proxyPath(m3u8.RouteSegment, origin.URL+"/v.mp4", ""), http.Header{
		"Range": {"bytes=0-3"},
	})
	is.Equal(gotRange, "bytes=0-3")                           // range forwarded
	is.Equal(w.Code, http.StatusPartialContent)               // partial content mirrored
	is.Equal(w.Header().Get("Content-Range"), "bytes 0-3/10") // content range mirrored
	is.Equal(w.Header().Get("Accept-Ranges"), "bytes")        // accept ranges mirrored
	is.Equal(w.Body.String(), "0123")                         // partial body
}

func TestRelayStalledOrigin(t *testing.T) {
	is := is.New(t)
	release := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = io.WriteString(w, "abc")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer origin.Close()
	defer close(release)

	client := upstream.New(upstream.Options{Timeout: 200 * time.Millisecond}, logging.Discard())
	h := NewServer(config.Default(), client, logging.Discard()).Routes()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- get(h, proxyPath(m3u8.RouteSegment, origin.URL+"/seg.ts", ""), nil) }()
	select {
	case w := <-done:
		is.Equal(w.Body.String(), "abc") // bytes before the stall are relayed
	case <-time.After(3 * time.Second):
		t.Fatal("relay still open after the origin went quiet")
	}
}

func TestOptions(t *testing.T) {
	is := is.New(t)
	h := newProxy(config.Default())
	for _, path := range []string{"/proxy/m3u8", "/proxy/segment?url=x", "/anything"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		is.Equal(w.Code, http.StatusNoContent) // preflight answered
		is.Equal(w.Body.Len(), 0)              // no body
		assertCORS(is, w)
	}
}

func TestNotFound(t *testing.T) {
	is := is.New(t)
	w := get(newProxy(config.Default()), "/proxy/other?url=x", nil)
	is.Equal(w.Code, http.StatusNotFound) // unknown path
	is.Equal(w.Body.String(), "Not Found")
	assertCORS(is, w)
}

func TestHealth(t *testing.T) {
	is := is.New(t)
	w := get(newProxy(config.Default()), "/healthz", nil)
	is.Equal(w.Code, http.StatusOK) // healthy
	var body map[string]string
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &body)) // JSON body
	is.Equal(body["status"], "ok")
	is.Equal(body["service"], ServiceName)
}

func TestMetricsEndpoint(t *testing.T) {
	is := is.New(t)
	w := get(newProxy(config.Default()), "/metrics", nil)
	is.Equal(w.Code, http.StatusOK) // exposed by default
	is.True(strings.Contains(w.Body.String(), "hlsproxy_"))

	cfg := config.Default()
	cfg.MetricsEnabled = false
	w = get(newProxy(cfg), "/metrics", nil)
	is.Equal(w.Code, http.StatusNotFound) // hidden when disabled
}

func TestRequestID(t *testing.T) {
	is := is.New(t)
	h := newProxy(config.Default())

	w := get(h, "/healthz", http.Header{RequestIDHeader: {"abc-123"}})
	is.Equal(w.Header().Get(RequestIDHeader), "abc-123") // incoming id kept

	w = get(h, "/healthz", nil)
	is.Equal(len(w.Header().Get(RequestIDHeader)), 36) // new uuid assigned

	w = get(h, "/healthz", http.Header{RequestIDHeader: {"has space"}})
	is.True(w.Header().Get(RequestIDHeader) != "has space") // unsafe id replaced
}

// panicky is an Upstream that panics on every call.
type panicky struct{}

func (panicky) FetchManifest(context.Context, string, http.Header) (*upstream.Manifest, error) {
	panic("boom")
}

func (panicky) Open(context.Context, string, http.Header) (*http.Response, error) {
	panic(errors.New("kaboom"))
}

func TestPanicRecovered(t *testing.T) {
	is := is.New(t)
	h := NewServer(config.Default(), panicky{}, logging.Discard()).Routes()

	w := get(h, proxyPath(m3u8.RouteM3U8, "http://cdn.example.com/a.m3u8", ""), nil)
	is.Equal(w.Code, http.StatusInternalServerError) // panic becomes 500
	is.Equal(w.Body.String(), "Server error: boom")
	assertCORS(is, w)

	w = get(h, proxyPath(m3u8.RouteKey, "http://cdn.example.com/k.bin", ""), nil)
	is.Equal(w.Code, http.StatusInternalServerError) // error panics too
	is.Equal(w.Body.String(), "Server error: kaboom")
}
