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

package arangoconn

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// RoundTripperFactory is used to create the transport of each host. A
// transport handles requests to a single endpoint, and is created once
// per distinct endpoint URL.
type RoundTripperFactory interface {
	// New creates a new [http.RoundTripper] for requests using the given
	// scheme to the given host, configured using the given options. It
	// returns an error if the scheme is not supported.
	New(scheme, hostPort string, options RoundTripperOptions) (RoundTripperResult, error)
}

// RoundTripperResult represents a transport created by a RoundTripperFactory.
type RoundTripperResult struct {
	// RoundTripper is the actual round-tripper that handles requests.
	RoundTripper http.RoundTripper
	// Scheme, if non-empty, is the scheme to use for requests to RoundTripper.
	// This replaces the request's original scheme. This is useful when a
	// custom scheme is used to trigger a custom transport, but the underlying
	// RoundTripper still expects a non-custom scheme, such as "http".
	Scheme string
	// Close is an optional function that will be called (if non-nil) when
	// this round-tripper is no longer needed.
	Close func()
}

// RoundTripperOptions defines the options used to create a round-tripper.
type RoundTripperOptions struct {
	// DialFunc should be used by the round-tripper to establish network
	// connections.
	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
	// MaxConnsPerHost is the configured number of sockets per host.
	MaxConnsPerHost int
	// KeepAlive indicates whether connections should be reused between
	// requests.
	KeepAlive bool
	// KeepAliveInterval is the TCP keep-alive interval.
	KeepAliveInterval time.Duration
}

// RoundTripperFunc adapts a function to the [http.RoundTripper] interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type defaultFactory struct{}

func (defaultFactory) New(scheme, hostPort string, opts RoundTripperOptions) (RoundTripperResult, error) {
	switch scheme {
	case "http", "https":
		return simpleTransport{}.NewRoundTripper(scheme, hostPort, opts), nil
	case "h2c":
		return h2cTransport{}.NewRoundTripper(scheme, hostPort, opts), nil
	default:
		return RoundTripperResult{}, fmt.Errorf("unsupported URL scheme %q", scheme)
	}
}

type simpleTransport struct{}

func (s simpleTransport) NewRoundTripper(_, _ string, opts RoundTripperOptions) RoundTripperResult {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           opts.DialFunc,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		MaxIdleConnsPerHost:   opts.MaxConnsPerHost,
		DisableKeepAlives:     !opts.KeepAlive,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return RoundTripperResult{RoundTripper: transport, Close: transport.CloseIdleConnections}
}

// hostConn is the conn.Conn for a single registered endpoint.
type hostConn struct {
	url    string
	scheme string
	rt     http.RoundTripper
	close  func()
}

func newHostConn(factory RoundTripperFactory, opts RoundTripperOptions, endpoint string) (*hostConn, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	result, err := factory.New(parsed.Scheme, parsed.Host, opts)
	if err != nil {
		return nil, err
	}
	return &hostConn{
		url:    endpoint,
		scheme: result.Scheme,
		rt:     result.RoundTripper,
		close:  result.Close,
	}, nil
}

func (c *hostConn) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.scheme != "" {
		req.URL.Scheme = c.scheme
	}
	return c.rt.RoundTrip(req)
}

func (c *hostConn) URL() string {
	return c.url
}

func (c *hostConn) Close() error {
	if c.close != nil {
		c.close()
	}
	return nil
}
