// Package headers encodes the caller-supplied header map carried in proxy
// URLs and builds the outbound headers of upstream requests.
package headers

/*
 This file defines the header token codec.
*/

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrMalformedToken = errors.New("malformed header token")

// Map is a set of header name/value pairs. Names are kept as written; they
// are canonicalized only when applied to an http.Header.
type Map map[string]string

// Encode serializes m into a header token. An empty map yields "".
func Encode(m Map) string {
	if len(m) == 0 {
		return ""
	}
	// a map of strings always marshals
	b, _ := json.Marshal(map[string]string(m))
	return string(b)
}

// Decode is Parse without the error. An absent or malformed token yields an
// empty map.
func Decode(token string) Map {
	m, err := Parse(token)
	if err != nil {
		return Map{}
	}
	return m
}

// Parse deserializes a header token. The token is a JSON object, either as
// plain text or percent-encoded once more. String values are kept, numbers
// and booleans are converted to text, everything else is dropped.
func Parse(token string) (Map, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Map{}, nil
	}
	raw := []byte(token)
	if !json.Valid(raw) {
		unescaped, err := url.PathUnescape(token)
		if err != nil || !json.Valid([]byte(unescaped)) {
			return Map{}, fmt.Errorf("%w: not a JSON object", ErrMalformedToken)
		}
		raw = []byte(unescaped)
	}

	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Map{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if fields == nil {
		// the token was the JSON literal null
		return Map{}, fmt.Errorf("%w: not a JSON object", ErrMalformedToken)
	}

	m := make(Map, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case string:
			m[name] = val
		case json.Number:
			m[name] = val.String()
		case bool:
			if val {
				m[name] = "true"
			} else {
				m[name] = "false"
			}
		}
	}
	return m, nil
}
