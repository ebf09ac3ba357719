package proxy

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/sirupsen/logrus"

	"github.com/mogiioin/hls-proxy/internal/headers"
	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/metrics"
	"github.com/mogiioin/hls-proxy/internal/upstream"
	"github.com/mogiioin/hls-proxy/m3u8"
)

// playlistMediaTypes are the media types origins serve playlists with.
var playlistMediaTypes = []contenttype.MediaType{
	contenttype.NewMediaType("application/vnd.apple.mpegurl"),
	contenttype.NewMediaType("application/x-mpegurl"),
	contenttype.NewMediaType("audio/mpegurl"),
	contenttype.NewMediaType("audio/x-mpegurl"),
}

// declaredPlaylist reports whether a Content-Type value names a playlist.
// Wildcards never match.
func declaredPlaylist(ct string) bool {
	ct, _, _ = strings.Cut(ct, ";")
	mt, err := contenttype.ParseMediaType(strings.ToLower(strings.TrimSpace(ct)))
	if err != nil {
		return false
	}
	for _, p := range playlistMediaTypes {
		if mt.Type == p.Type && mt.Subtype == p.Subtype {
			return true
		}
	}
	return false
}

// request is the decoded form of the url and headers parameters shared by
// all proxy routes.
type request struct {
	target string
	token  string
	header http.Header
}

// parseRequest validates the target and builds the outbound headers.
func (s *Server) parseRequest(r *http.Request) (request, error) {
	q := r.URL.Query()
	target := q.Get("url")
	if target == "" {
		return request{}, ErrMissingTargetURL
	}
	if _, err := upstream.ParseTarget(target); err != nil {
		return request{}, err
	}

	token := q.Get("headers")
	custom, err := headers.Parse(token)
	if err != nil {
		s.logger(r).WithError(err).Debug("ignoring header token")
	}
	h, skipped := headers.Outbound(target, r.UserAgent(), custom, s.defaults)
	if len(skipped) > 0 {
		s.logger(r).WithField("skipped", skipped).Debug("ignoring invalid custom headers")
	}
	return request{target: target, token: token, header: h}, nil
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	pctx, err := m3u8.NewPlaylistContext(req.target, req.token)
	if err != nil {
		s.fail(w, r, req.target, err)
		return
	}

	log := s.logger(r).WithField("url", logging.Truncate(req.target))
	log.Debug("fetching manifest")
	manifest, err := s.up.FetchManifest(r.Context(), req.target, req.header)
	if err != nil {
		s.fail(w, r, req.target, err)
		return
	}

	declared := "other"
	if declaredPlaylist(manifest.ContentType) {
		declared = "playlist"
	} else {
		log.WithField("content_type", manifest.ContentType).Debug("origin did not declare a playlist media type")
	}
	metrics.ManifestContentTypes.WithLabelValues(declared).Inc()

	text, sum, err := s.rewriter.RewriteWithSummary(manifest.Body, pctx)
	if err != nil {
		s.fail(w, r, req.target, err)
		return
	}
	metrics.ManifestRewrites.WithLabelValues(sum.Type.String()).Inc()
	for kind, n := range sum.References {
		if n > 0 && kind != m3u8.Blank && kind != m3u8.OpaqueTag {
			metrics.RewrittenReferences.WithLabelValues(kind.String()).Add(float64(n))
		}
	}
	log.WithFields(logrus.Fields{
		"type":         sum.Type.String(),
		"lines":        sum.Lines,
		"rewritten":    sum.Rewritten(),
		"unrecognized": sum.Unrecognized,
		"fallback":     manifest.Fallback,
	}).Debug("manifest rewritten")

	w.Header().Set("Content-Type", m3u8.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(text)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}
