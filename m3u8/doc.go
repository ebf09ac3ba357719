/* Package m3u8 rewrites HLS m3u8 playlists so that a client fetches every
nested playlist, media segment and encryption key through a proxy.

HLS (HTTP Live Streaming) playlists are plain text: tag lines start with
"#EXT" and every other non-blank line is a URI. A proxy that only relays the
top-level playlist is not enough, because the player resolves the URIs inside
it against the origin and fetches them directly. The Rewriter re-targets those
URIs at the proxy's own routes, carrying the absolute upstream URL and the
caller's header token as query parameters.

## Structure and design of the code

The playlist is treated as a sequence of lines, not parsed into a tree.
Normalize first repairs playlists whose tags and URIs were collapsed onto one
physical line. Each line is then classified into a Reference:

  - blank lines and tags without a URI are copied unchanged,
  - the URI attribute of EXT-X-I-FRAME-STREAM-INF is routed to RouteM3U8,
  - the URI attribute of EXT-X-KEY is routed to RouteKey,
  - URI lines ending in .m3u8 are routed to RouteM3U8,
  - every other URI line is routed to RouteSegment.

Relative URIs are resolved with Resolve against a PlaylistContext built by
NewPlaylistContext. Resolution is deliberately simpler than RFC 3986: dot
segments are not collapsed and queries are not merged.

Rewriting is not idempotent. Rewriting an already rewritten playlist yields
URLs that point from the proxy to the proxy.

Example, rewriting a media playlist fetched from a CDN:

	ctx, _ := m3u8.NewPlaylistContext("http://cdn.example.com/a/720p.m3u8", "")
	rw := m3u8.NewRewriter("")
	out, contentType, _ := rw.Rewrite("#EXTM3U\n#EXTINF:6,\nseg001.ts\n", ctx)
	fmt.Println(contentType) // application/vnd.apple.mpegurl
	fmt.Println(out)

The segment line becomes

	/proxy/segment?url=http%3A%2F%2Fcdn.example.com%2Fa%2Fseg001.ts&headers=

Library coded accordingly with IETF draft
http://tools.ietf.org/html/draft-pantos-http-live-streaming
*/
package m3u8
