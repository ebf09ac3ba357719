package telemetry

import "net/url"

// redactQuery replaces the header token of a proxy query string.
func redactQuery(raw string) string {
	if raw == "" {
		return raw
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return "[redacted]"
	}
	if q.Get("headers") == "" {
		return raw
	}
	q.Set("headers", "[redacted]")
	return q.Encode()
}
