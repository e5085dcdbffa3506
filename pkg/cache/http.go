package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the freshness lifetime used when a response carries no
// caching headers. Feature histories of a workspace change rarely within
// a harvesting session.
const DefaultTTL = 10 * time.Minute

// ErrNotCacheable is returned for responses marked Cache-Control: no-store.
var ErrNotCacheable = errors.New("response not cacheable")

// ResponseToEntry converts an HTTP response to an Entry. The response body
// is read and restored for the caller. fallbackTTL applies when the
// response carries neither Cache-Control max-age nor Expires.
func ResponseToEntry(resp *http.Response, fallbackTTL time.Duration) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	directives := parseCacheControl(resp.Header.Get("Cache-Control"))
	if _, ok := directives["no-store"]; ok {
		return nil, ErrNotCacheable
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &Entry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}
	entry.Expires = expiresAt(resp.Header, directives, fallbackTTL)

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// expiresAt resolves the freshness deadline: no-cache beats max-age beats
// Expires beats the fallback.
func expiresAt(headers http.Header, directives map[string]string, fallbackTTL time.Duration) time.Time {
	now := time.Now()

	if _, ok := directives["no-cache"]; ok {
		return now
	}

	if raw, ok := directives["max-age"]; ok {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if expires.Before(now) {
				return now
			}
			return expires
		}
	}

	if fallbackTTL <= 0 {
		fallbackTTL = DefaultTTL
	}
	return now.Add(fallbackTTL)
}

func parseCacheControl(value string) map[string]string {
	directives := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, arg, _ := strings.Cut(part, "=")
		directives[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(arg), `"`)
	}
	return directives
}

// ShouldMakeConditionalRequest reports whether a stale entry carries a
// validator the server can check.
func ShouldMakeConditionalRequest(entry *Entry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match (preferred) or If-Modified-Since.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}

// EntryToResponse rebuilds an HTTP response from a cached entry.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	headers := entry.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set("X-Cadseq-Cache", "hit")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}
