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

// Package conn provides the representation of a single cluster endpoint.
// A connection is the primitive used for load balancing and failover by
// the [github.com/bufbuild/arangoconn] package. A single connection wraps
// a single transport (or [http.RoundTripper]) to a single endpoint URL.
package conn

import "net/http"

// Conn represents a connection to one endpoint of the cluster. It is a
// *logical* connection. It may actually be represented by zero or more
// physical connections (i.e. sockets).
type Conn interface {
	// RoundTrip sends a request using this connection. This is the same as
	// [http.RoundTripper]'s method of the same name. The request's URL
	// must already point at this connection's endpoint.
	RoundTrip(req *http.Request) (*http.Response, error)
	// URL returns the normalized endpoint URL, such as "http://db1:8529".
	URL() string
	// Close releases any resources held by the underlying transport.
	Close() error
}
