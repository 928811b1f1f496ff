package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const maxBodyBytes = 64 << 10

// ReadParams collects request parameters from a JSON object body or a form body,
// falling back to the query string.
func ReadParams(r *http.Request) (url.Values, error) {
	values := url.Values{}
	for k, v := range r.URL.Query() {
		values[k] = v
	}
	if r.Body == nil || r.Method == http.MethodGet {
		return values, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return values, nil
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				values.Set(k, t)
			case float64:
				values.Set(k, strconv.FormatFloat(t, 'f', -1, 64))
			case bool:
				values.Set(k, strconv.FormatBool(t))
			case nil:
			default:
				return nil, fmt.Errorf("parameter %q must be a scalar", k)
			}
		}
		return values, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	for k, v := range r.PostForm {
		values[k] = v
	}
	return values, nil
}

// WantsJSON reports whether the caller should get a JSON answer rather than a redirect.
func WantsJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
