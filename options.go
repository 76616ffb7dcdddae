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
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bufbuild/arangoconn/picker"
	"github.com/sirupsen/logrus"
)

const (
	defaultURL           = "http://localhost:8529"
	defaultDatabase      = "_system"
	defaultArangoVersion = 30000
	defaultMaxSockets    = 3
	defaultKeepAlive     = time.Second
)

// Option is an option used to customize the behavior of a connection.
type Option interface {
	apply(*options)
}

// WithRootContext configures the context used for all requests sent by
// a connection. If not specified, [context.Background] is used. Closing
// the connection cancels it.
func WithRootContext(ctx context.Context) Option {
	return optionFunc(func(opts *options) {
		opts.rootCtx = ctx
	})
}

// WithURLs configures the initial endpoints of the cluster. URLs using
// the "tcp" and "ssl" schemes are treated as "http" and "https". If no
// WithURLs option is provided, "http://localhost:8529" is used.
func WithURLs(urls ...string) Option {
	return optionFunc(func(opts *options) {
		opts.urls = append(opts.urls, urls...)
	})
}

// WithAbsolute configures the connection to send request paths as given,
// without the "/_db/<name>" prefix. The database of an absolute
// connection cannot be queried or changed.
func WithAbsolute() Option {
	return optionFunc(func(opts *options) {
		opts.absolute = true
	})
}

// WithDatabase configures the initial database. If not specified,
// "_system" is used.
func WithDatabase(name string) Option {
	return optionFunc(func(opts *options) {
		opts.database = name
	})
}

// WithArangoVersion configures the server version the client expects,
// as a number such as 31100 for 3.11. It is sent with every request. If
// not specified, 30000 is used.
func WithArangoVersion(version int) Option {
	return optionFunc(func(opts *options) {
		opts.arangoVersion = version
	})
}

// WithLoadBalancingStrategy configures how the active host changes over
// time. If not specified, [picker.StrategyNone] is used.
func WithLoadBalancingStrategy(strategy picker.Strategy) Option {
	return optionFunc(func(opts *options) {
		opts.strategy = strategy
	})
}

// WithMaxSockets configures the number of sockets per host. Together with
// keep-alive, this bounds the number of requests in flight across all
// hosts: the bound is maxSockets, doubled if keep-alive is enabled. If
// zero or no WithMaxSockets option is provided, 3 is used.
func WithMaxSockets(maxSockets int) Option {
	return optionFunc(func(opts *options) {
		opts.maxSockets = maxSockets
	})
}

// WithKeepAlive configures whether connections are kept alive between
// requests and the TCP keep-alive interval. Keep-alive is enabled by
// default, with an interval of one second.
func WithKeepAlive(enabled bool, interval time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.disableKeepAlive = !enabled
		opts.keepAliveInterval = interval
	})
}

// WithHeaders configures headers that are sent with every request.
func WithHeaders(header http.Header) Option {
	return optionFunc(func(opts *options) {
		if opts.headers == nil {
			opts.headers = http.Header{}
		}
		for key, values := range header {
			for _, value := range values {
				opts.headers.Add(key, value)
			}
		}
	})
}

// WithRoundTripperFactory configures how the transport for each host is
// created. If not specified, an [http.Transport] is used for "http" and
// "https" hosts, and an HTTP/2-only transport for "h2c" hosts.
func WithRoundTripperFactory(factory RoundTripperFactory) Option {
	return optionFunc(func(opts *options) {
		opts.factory = factory
	})
}

// WithDialer configures the function used by the default transports to
// establish network connections. If not specified, a [net.Dialer] with a
// 30-second dial timeout and the configured keep-alive interval is used.
func WithDialer(dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return optionFunc(func(opts *options) {
		opts.dialFunc = dialFunc
	})
}

// WithExplicitContentLength configures whether request descriptors carry
// a Content-Length header computed by the client. This is enabled by
// default.
func WithExplicitContentLength(enabled bool) Option {
	return optionFunc(func(opts *options) {
		opts.omitContentLength = !enabled
	})
}

// WithMaxRedirects limits how many leader redirects a single request
// follows. When a request has been redirected limit times, the next
// redirect response is returned to the caller like any other response.
// If zero or no WithMaxRedirects option is provided, redirects are
// followed without limit.
func WithMaxRedirects(limit int) Option {
	return optionFunc(func(opts *options) {
		opts.maxRedirects = limit
	})
}

// WithLogger configures the logger used for routing events, like leader
// redirects and failover. If not specified, nothing is logged.
func WithLogger(logger logrus.FieldLogger) Option {
	return optionFunc(func(opts *options) {
		opts.logger = logger
	})
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

type options struct {
	rootCtx           context.Context //nolint:containedctx
	urls              []string
	absolute          bool
	database          string
	arangoVersion     int
	strategy          picker.Strategy
	maxSockets        int
	disableKeepAlive  bool
	keepAliveInterval time.Duration
	headers           http.Header
	factory           RoundTripperFactory
	dialFunc          func(ctx context.Context, network, addr string) (net.Conn, error)
	omitContentLength bool
	maxRedirects      int
	logger            logrus.FieldLogger
}

func (opts *options) applyDefaults() {
	if opts.rootCtx == nil {
		opts.rootCtx = context.Background()
	}
	if len(opts.urls) == 0 {
		opts.urls = []string{defaultURL}
	}
	if opts.database == "" {
		opts.database = defaultDatabase
	}
	if opts.arangoVersion == 0 {
		opts.arangoVersion = defaultArangoVersion
	}
	if opts.maxSockets <= 0 {
		opts.maxSockets = defaultMaxSockets
	}
	if opts.keepAliveInterval <= 0 {
		opts.keepAliveInterval = defaultKeepAlive
	}
	if opts.headers == nil {
		opts.headers = http.Header{}
	}
	if opts.dialFunc == nil {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: opts.keepAliveInterval,
		}
		if opts.disableKeepAlive {
			dialer.KeepAlive = -1
		}
		opts.dialFunc = dialer.DialContext
	}
	if opts.factory == nil {
		opts.factory = defaultFactory{}
	}
	if opts.logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		opts.logger = logger
	}
}

// maxConcurrency is the bound on requests in flight across all hosts.
func (opts *options) maxConcurrency() int {
	if opts.disableKeepAlive {
		return opts.maxSockets
	}
	return opts.maxSockets * 2
}

func (opts *options) roundTripperOptions() RoundTripperOptions {
	return RoundTripperOptions{
		DialFunc:          opts.dialFunc,
		MaxConnsPerHost:   opts.maxSockets,
		KeepAlive:         !opts.disableKeepAlive,
		KeepAliveInterval: opts.keepAliveInterval,
	}
}
