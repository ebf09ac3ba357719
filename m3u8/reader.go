package m3u8

/*
 This file defines functions related to playlist parsing.
*/

import (
	"regexp"
	"strings"
)

var (
	// a tag glued to the previous element by spaces instead of a newline
	reGluedTag = regexp.MustCompile(`(\S)[ \t\r\f\v]+(#EXT)`)
	// a variant URI written on the same line as its EXT-X-STREAM-INF tag,
	// split only at whitespace outside quoted attribute values
	reGluedStreamInfURI = regexp.MustCompile(`(#EXT-X-STREAM-INF:(?:[^\s"]|"[^"\n]*")+)[ \t]+([^\s#][^\n]*)`)
	// media and subtitle extensions, optionally followed by a query
	reMediaExt = regexp.MustCompile(`(?i)\.(ts|aac|mp4|vtt|webvtt)($|\?)`)
)

// Normalize repairs playlists whose elements were collapsed onto one
// physical line. Every #EXT tag preceded by spaces gets its own line and a
// URI following an EXT-X-STREAM-INF attribute list is moved to the next line.
func Normalize(raw string) string {
	out := reGluedTag.ReplaceAllString(raw, "$1\n$2")
	return reGluedStreamInfURI.ReplaceAllString(out, "$1\n$2")
}

// SplitLines splits normalized playlist text on "\n". Surrounding
// whitespace, including a "\r" left by CRLF line ends, is trimmed.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

// Classify decides how one line of a playlist is rewritten. line should
// already be trimmed.
func (rw *Rewriter) Classify(line string, ctx PlaylistContext) Reference {
	ref := Reference{Kind: OpaqueTag, Line: line}
	switch {
	case line == "":
		ref.Kind = Blank
		return ref
	case strings.HasPrefix(line, "#EXT-X-I-FRAME-STREAM-INF"):
		return attributeReference(ref, ctx, IFrameStreamURI, RouteM3U8)
	case strings.HasPrefix(line, "#EXT-X-KEY"):
		return attributeReference(ref, ctx, EncryptionKeyURI, RouteKey)
	case rw.RewriteRenditions && strings.HasPrefix(line, "#EXT-X-MEDIA:"):
		return attributeReference(ref, ctx, VariantPlaylist, RouteM3U8)
	case rw.RewriteRenditions && strings.HasPrefix(line, "#EXT-X-MAP:"):
		return attributeReference(ref, ctx, MediaSegment, RouteSegment)
	case rw.RewriteRenditions && strings.HasPrefix(line, "#EXT-X-SESSION-KEY:"):
		return attributeReference(ref, ctx, EncryptionKeyURI, RouteKey)
	case strings.HasPrefix(line, "#"):
		return ref
	}

	ref.Raw = line
	ref.URL = Resolve(ctx, line)
	if !isFetchable(ref.URL) {
		ref.URL = ""
		return ref
	}
	ref.Start, ref.End = 0, len(line)
	if isPlaylistURI(line) {
		ref.Kind, ref.Route = VariantPlaylist, RouteM3U8
		return ref
	}
	// Anything that is not a nested playlist goes through the segment
	// relay, recognized media extension or not.
	ref.Kind, ref.Route = MediaSegment, RouteSegment
	return ref
}

// attributeReference fills ref from the URI attribute of a tag line. Tags
// without a usable URI attribute stay opaque.
func attributeReference(ref Reference, ctx PlaylistContext, kind ReferenceKind, route Route) Reference {
	start, end, ok := uriAttribute(ref.Line)
	if !ok {
		return ref
	}
	raw := ref.Line[start:end]
	abs := Resolve(ctx, raw)
	if !isFetchable(abs) {
		// data: and skd: keys are consumed by the player itself
		return ref
	}
	ref.Kind, ref.Route = kind, route
	ref.Raw, ref.URL = raw, abs
	ref.Start, ref.End = start, end
	return ref
}

// uriAttribute locates the value of the URI="..." attribute of a tag line.
// The value runs up to the next double quote and must not be empty.
func uriAttribute(line string) (start, end int, ok bool) {
	const attr = `URI="`
	from := 0
	for {
		i := strings.Index(line[from:], attr)
		if i < 0 {
			return 0, 0, false
		}
		i += from
		// only a whole attribute name counts, not e.g. SERVER-URI
		if i > 0 && line[i-1] != ':' && line[i-1] != ',' && line[i-1] != ' ' {
			from = i + len(attr)
			continue
		}
		start = i + len(attr)
		n := strings.IndexByte(line[start:], '"')
		if n <= 0 {
			return 0, 0, false
		}
		return start, start + n, true
	}
}

// isPlaylistURI reports whether a URI line names an M3U8 playlist. A query
// or fragment after the extension is ignored.
func isPlaylistURI(uri string) bool {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return hasSuffixFold(uri, ".m3u8")
}

// isMediaURI reports whether a URI line carries a known media or subtitle
// extension.
func isMediaURI(uri string) bool {
	return reMediaExt.MatchString(uri)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// detectListType updates the playlist type from one tag line. Once the
// type is known it does not change.
func detectListType(current ListType, line string) ListType {
	if current != 0 {
		return current
	}
	switch {
	case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"),
		strings.HasPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"),
		strings.HasPrefix(line, "#EXT-X-MEDIA:"),
		strings.HasPrefix(line, "#EXT-X-SESSION-DATA:"):
		return MASTER
	case strings.HasPrefix(line, "#EXTINF:"),
		strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"),
		strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"),
		strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
		return MEDIA
	}
	return 0
}
