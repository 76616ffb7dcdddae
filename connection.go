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
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/bufbuild/arangoconn/conn"
	"github.com/bufbuild/arangoconn/internal"
	"github.com/bufbuild/arangoconn/internal/conns"
	"github.com/bufbuild/arangoconn/picker"
	"github.com/bufbuild/arangoconn/request"
	"github.com/bufbuild/arangoconn/response"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned for requests submitted to, or still queued
	// in, a closed connection.
	ErrClosed = errors.New("connection is closed")
	// ErrAbsolute is returned when querying or changing the database of
	// an absolute connection.
	ErrAbsolute = errors.New("connection is absolute: no database")

	errEmptyDatabase = errors.New("database name must not be empty")
)

// Connection sends requests to the hosts of a cluster. It bounds the
// number of requests in flight, picks a host for every request according
// to its load balancing strategy, and follows leader redirects. A
// Connection is safe for concurrent use by multiple goroutines.
type Connection struct {
	ctx                   context.Context //nolint:containedctx
	cancel                context.CancelFunc
	logger                logrus.FieldLogger
	version               int
	absolute              bool
	explicitContentLength bool
	maxRedirects          int
	maxConcurrency        int

	// NB: only replaced from tests
	clock internal.Clock

	mu sync.Mutex
	// +checklocks:mu
	hosts *conns.Registry
	// +checklocks:mu
	balancer *picker.Balancer
	// +checklocks:mu
	active int
	// +checklocks:mu
	queue []*task
	// +checklocks:mu
	database string
	// +checklocks:mu
	headers http.Header
	// +checklocks:mu
	closed bool
}

// Stats is a snapshot of a connection's scheduler.
type Stats struct {
	// Active is the number of requests in flight.
	Active int
	// Queued is the number of requests waiting to be sent.
	Queued int
	// Hosts is the number of registered hosts.
	Hosts int
	// MaxConcurrency is the bound on Active.
	MaxConcurrency int
}

// NewConnection returns a new connection that uses the given options.
func NewConnection(opts ...Option) (*Connection, error) {
	var options options
	for _, opt := range opts {
		opt.apply(&options)
	}
	options.applyDefaults()

	rtOpts := options.roundTripperOptions()
	hosts := conns.NewRegistry(func(endpoint string) (conn.Conn, error) {
		host, err := newHostConn(options.factory, rtOpts, endpoint)
		if err != nil {
			return nil, err
		}
		return host, nil
	})
	if _, err := hosts.Register(options.urls...); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(options.rootCtx)
	return &Connection{
		ctx:                   ctx,
		cancel:                cancel,
		logger:                options.logger,
		version:               options.arangoVersion,
		absolute:              options.absolute,
		explicitContentLength: !options.omitContentLength,
		maxRedirects:          options.maxRedirects,
		maxConcurrency:        options.maxConcurrency(),
		clock:                 internal.NewRealClock(),
		hosts:                 hosts,
		balancer:              picker.New(options.strategy, hosts.Len(), internal.NewRand()),
		database:              options.database,
		headers:               options.headers.Clone(),
	}, nil
}

// AddHosts registers additional endpoints and returns the host index of
// every given URL, in order. URLs that are already registered are not
// added again, but their existing index is returned.
func (c *Connection) AddHosts(urls ...string) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.hosts.Register(urls...)
}

// Hosts returns the URLs of all registered hosts, in index order.
func (c *Connection) Hosts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hosts.URLs()
}

// ActiveHost returns the index of the host used for requests that are
// not pinned to a host.
func (c *Connection) ActiveHost() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balancer.Active()
}

// Database returns the name of the current database.
func (c *Connection) Database() (string, error) {
	if c.absolute {
		return "", ErrAbsolute
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.database, nil
}

// SetDatabase changes the database used by requests submitted from now on.
func (c *Connection) SetDatabase(name string) error {
	if c.absolute {
		return ErrAbsolute
	}
	if name == "" {
		return errEmptyDatabase
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.database = name
	return nil
}

// SetHeader sets a header sent with every request submitted from now on.
func (c *Connection) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(key, value)
}

// ArangoVersion returns the configured server version, such as 31100.
func (c *Connection) ArangoVersion() int {
	return c.version
}

// ArangoMajor returns the major component of the configured server
// version, for example 3 for 31100.
func (c *Connection) ArangoMajor() int {
	return c.version / 10000
}

// Stats returns a snapshot of the connection's scheduler.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Active:         c.active,
		Queued:         len(c.queue),
		Hosts:          c.hosts.Len(),
		MaxConcurrency: c.maxConcurrency,
	}
}

// Do submits the given request and waits for its result. The returned
// error is the result's Err. If ctx is done first, Do returns ctx.Err(),
// but the request itself is not cancelled.
func (c *Connection) Do(ctx context.Context, req *request.Request) (response.Result, error) {
	results, err := c.Submit(req)
	if err != nil {
		return response.Result{}, err
	}
	select {
	case result := <-results:
		return result, result.Err
	case <-ctx.Done():
		return response.Result{}, ctx.Err()
	}
}

// Close fails all queued requests with ErrClosed, cancels requests in
// flight, and closes the transports of all hosts.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	queued := c.queue
	c.queue = nil
	err := c.hosts.Close()
	c.mu.Unlock()

	c.cancel()
	for _, t := range queued {
		c.finish(t, response.TransportFailure(ErrClosed))
	}
	return err
}

func (c *Connection) encodeOptionsLocked() request.EncodeOptions {
	opts := request.EncodeOptions{
		DefaultHeaders:        c.headers.Clone(),
		Version:               c.version,
		ExplicitContentLength: c.explicitContentLength,
	}
	if !c.absolute {
		opts.DatabasePath = "/_db/" + url.PathEscape(c.database)
	}
	return opts
}
