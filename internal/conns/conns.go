// Copyright 2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package conns contains the registry of endpoint connections used by a
// connection's scheduler. Entries are only ever appended, so an index
// handed out by the registry stays valid for the registry's lifetime.
package conns

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bufbuild/arangoconn/conn"
	"golang.org/x/sync/errgroup"
)

var errMissingHost = errors.New("missing host")

// Registry is an append-only, deduplicated list of connections, keyed by
// normalized endpoint URL. It is not safe for concurrent use: the owner
// must serialize access.
type Registry struct {
	newConn func(url string) (conn.Conn, error)
	conns   []conn.Conn
	index   map[string]int
}

// NewRegistry returns an empty registry. The given function is called
// exactly once for every distinct normalized URL that is registered.
func NewRegistry(newConn func(url string) (conn.Conn, error)) *Registry {
	return &Registry{
		newConn: newConn,
		index:   map[string]int{},
	}
}

// Register adds the given endpoint URLs, skipping those already present,
// and returns the registry index of every given URL in the order given.
// If any URL is invalid, or a connection cannot be created, nothing is
// added.
func (r *Registry) Register(urls ...string) ([]int, error) {
	normalized := make([]string, len(urls))
	for i, rawURL := range urls {
		n, err := Normalize(rawURL)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}

	var added []conn.Conn
	pending := map[string]int{}
	indices := make([]int, len(normalized))
	for i, u := range normalized {
		if idx, ok := r.index[u]; ok {
			indices[i] = idx
			continue
		}
		if idx, ok := pending[u]; ok {
			indices[i] = idx
			continue
		}
		c, err := r.newConn(u)
		if err != nil {
			for _, c := range added {
				_ = c.Close()
			}
			return nil, fmt.Errorf("create connection for %s: %w", u, err)
		}
		idx := len(r.conns) + len(added)
		pending[u] = idx
		indices[i] = idx
		added = append(added, c)
	}
	for u, idx := range pending {
		r.index[u] = idx
	}
	r.conns = append(r.conns, added...)
	return indices, nil
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Get returns the connection at index i.
func (r *Registry) Get(i int) conn.Conn {
	return r.conns[i]
}

// URLs returns the normalized URLs of all connections, in index order.
func (r *Registry) URLs() []string {
	urls := make([]string, len(r.conns))
	for i, c := range r.conns {
		urls[i] = c.URL()
	}
	return urls
}

// Close closes all registered connections concurrently. It returns the
// first error encountered, if any.
func (r *Registry) Close() error {
	grp, _ := errgroup.WithContext(context.Background())
	for _, c := range r.conns {
		grp.Go(c.Close)
	}
	return grp.Wait()
}

// Normalize returns the canonical form of the given endpoint URL. The
// "tcp" and "ssl" schemes are rewritten to "http" and "https", scheme and
// host are lower-cased, and any trailing slash is removed. A URL without
// a scheme is assumed to be "http".
func Normalize(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: %w", rawURL, errMissingHost)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "tcp":
		scheme = "http"
	case "ssl":
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(parsed.Host) + strings.TrimRight(parsed.EscapedPath(), "/"), nil
}
