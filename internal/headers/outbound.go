package headers

/*
 This file defines the outbound request headers.
*/

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpguts"
)

// DefaultUserAgent is sent upstream when neither the caller nor the
// configuration supplies a user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Defaults are the platform defaults of outbound requests. Zero fields fall
// back to DefaultUserAgent and to the origin of the target.
type Defaults struct {
	UserAgent string
	Referer   string
}

// Outbound builds the headers of an upstream request for target. Precedence,
// lowest first: platform defaults, the caller's own User-Agent, then the
// decoded custom headers. Entries that are not valid HTTP header fields are
// skipped and returned by name.
func Outbound(target, callerUA string, custom Map, d Defaults) (http.Header, []string) {
	h := make(http.Header, 5+len(custom))

	ua := d.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	if callerUA != "" {
		ua = callerUA
	}
	h.Set("User-Agent", ua)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Connection", "keep-alive")

	referer := d.Referer
	if referer == "" {
		referer = origin(target)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}

	var skipped []string
	for name, value := range custom {
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			skipped = append(skipped, name)
			continue
		}
		h.Set(name, value)
	}
	return h, skipped
}

// origin returns scheme://host of rawURL, or "" when it has neither.
func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
