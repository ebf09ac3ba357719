package m3u8

/*
 This file defines functions related to playlist generation.
*/

import (
	"net/url"
	"strings"
)

// NewRewriter creates a rewriter emitting proxy URLs under origin.
func NewRewriter(origin string) *Rewriter {
	return &Rewriter{Origin: strings.TrimRight(origin, "/")}
}

// Rewrite rewrites every URI of a playlist so that it is fetched through
// the proxy. It returns the new playlist text and the content type to serve
// it with.
func (rw *Rewriter) Rewrite(raw string, ctx PlaylistContext) (string, string, error) {
	text, _, err := rw.RewriteWithSummary(raw, ctx)
	if err != nil {
		return "", "", err
	}
	return text, ContentType, nil
}

// RewriteWithSummary is Rewrite that also reports what it rewrote.
// The returned text always has the same number of lines, in the same order,
// as the normalized input.
func (rw *Rewriter) RewriteWithSummary(raw string, ctx PlaylistContext) (string, Summary, error) {
	sum := Summary{References: make(map[ReferenceKind]int)}
	if raw == "" {
		return "", sum, ErrEmptyContent
	}

	lines := SplitLines(Normalize(raw))
	sum.Lines = len(lines)

	var buf strings.Builder
	buf.Grow(len(raw) * 2)
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		ref := rw.Classify(line, ctx)
		sum.References[ref.Kind]++
		if strings.HasPrefix(line, "#") {
			sum.Type = detectListType(sum.Type, line)
		} else if ref.Kind == MediaSegment && !isMediaURI(line) {
			sum.Unrecognized++
		}
		rw.writeReference(&buf, ref, ctx.HeaderToken)
	}
	return buf.String(), sum, nil
}

// writeReference writes the rewritten form of one classified line.
func (rw *Rewriter) writeReference(buf *strings.Builder, ref Reference, token string) {
	if !ref.Rewrites() {
		buf.WriteString(ref.Line)
		return
	}
	buf.WriteString(ref.Line[:ref.Start])
	buf.WriteString(rw.ProxyURL(ref.Route, ref.URL, token))
	buf.WriteString(ref.Line[ref.End:])
}

// ProxyURL builds the proxy URL that fetches target through route. token is
// the header token to carry along; an empty token still yields an empty
// headers parameter.
func (rw *Rewriter) ProxyURL(route Route, target, token string) string {
	var b strings.Builder
	b.Grow(len(rw.Origin) + len(route) + len(target)*3/2 + len(token)*3/2 + 15)
	b.WriteString(rw.Origin)
	b.WriteString(string(route))
	b.WriteString("?url=")
	b.WriteString(url.QueryEscape(target))
	b.WriteString("&headers=")
	b.WriteString(url.QueryEscape(token))
	return b.String()
}
