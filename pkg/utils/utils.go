// Package utils provides fetch, cache, logging and buffer helpers shared by
// the point cloud packages.
package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("file not found on server")

type progressWriter struct {
	io.Writer
	total uint64
	last  uint64
	label string
	log   zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 5*1024*1024 { // Log every 5MB
		pw.log.Debug().Str("source", pw.label).Uint64("mb", pw.total/1024/1024).Msg("downloading")
		pw.last = pw.total
	}
	return n, err
}

// IsRemote reports whether location is fetched over HTTP.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// LocalPath turns a file:// URL or bare path into a filesystem path.
func LocalPath(location string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(location), "file://") {
		return location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", location, err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return u.Host + u.Path, nil
	}
	return u.Path, nil
}

// Download fetches url into memory.
func Download(ctx context.Context, client *http.Client, url string, log zerolog.Logger) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("closing response body")
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var buf bytes.Buffer
	pw := &progressWriter{Writer: &buf, label: url, log: log}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetCachedReader returns a reader for location. Remote locations go through
// cache when it is non-nil; local paths are opened directly.
func GetCachedReader(ctx context.Context, client *http.Client, location string, cache *DiskCache, log zerolog.Logger) (io.ReadCloser, error) {
	if !IsRemote(location) {
		path, err := LocalPath(location)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
			}
			return nil, err
		}
		return f, nil
	}

	if cache != nil {
		body, err := cache.Get(location)
		if err != nil {
			log.Warn().Err(err).Str("source", location).Msg("cache read failed, downloading")
		} else if body != nil {
			log.Debug().Str("source", location).Msg("using cached dataset")
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	log.Debug().Str("source", location).Msg("downloading dataset")
	body, err := Download(ctx, client, location, log)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Put(location, body); err != nil {
			log.Warn().Err(err).Str("source", location).Msg("cache write failed")
		}
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
