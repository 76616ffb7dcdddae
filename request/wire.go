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

package request

import (
	"bytes"
	"context"
	"net/http"
	"strings"
)

// Wire is a finalized, host-independent request descriptor.
type Wire struct {
	Method string
	// Path is the path and (optional) query, starting with "/" unless it
	// is empty.
	Path   string
	Header http.Header
	Body   []byte
}

// NewHTTPRequest creates an HTTP request for this descriptor, sent to the
// endpoint with the given base URL (such as "http://db1:8529"). Every call
// returns a fresh request with its own body reader, so a descriptor can
// be sent more than once.
func (w *Wire) NewHTTPRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	target := strings.TrimRight(baseURL, "/") + w.Path
	req, err := http.NewRequestWithContext(ctx, w.Method, target, bytes.NewReader(w.Body))
	if err != nil {
		return nil, err
	}
	req.Header = w.Header.Clone()
	// net/http computes the length itself and ignores the header
	req.Header.Del(HeaderContentLength)
	return req, nil
}
