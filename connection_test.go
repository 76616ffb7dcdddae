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

package arangoconn_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bufbuild/arangoconn"
	"github.com/bufbuild/arangoconn/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(req *http.Request) (*http.Response, error)

// fakeCluster is a RoundTripperFactory whose transports dispatch to
// per-host handlers and record every request they see.
type fakeCluster struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	fallback handlerFunc
	calls    []string
	requests []*http.Request
	bodies   []string
}

func newFakeCluster(fallback handlerFunc) *fakeCluster {
	return &fakeCluster{handlers: map[string]handlerFunc{}, fallback: fallback}
}

func (f *fakeCluster) handle(host string, handler handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[host] = handler
}

func (f *fakeCluster) New(scheme, hostPort string, _ arangoconn.RoundTripperOptions) (arangoconn.RoundTripperResult, error) {
	base := scheme + "://" + hostPort
	transport := arangoconn.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.calls = append(f.calls, base)
		f.requests = append(f.requests, req)
		f.bodies = append(f.bodies, string(body))
		handler, ok := f.handlers[base]
		if !ok {
			handler = f.fallback
		}
		f.mu.Unlock()
		return handler(req)
	})
	return arangoconn.RoundTripperResult{RoundTripper: transport}, nil
}

func (f *fakeCluster) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func okHandler(*http.Request) (*http.Response, error) {
	return jsonResponse(http.StatusOK, `{"result":true}`), nil
}

func newTestConnection(t *testing.T, cluster *fakeCluster, opts ...arangoconn.Option) *arangoconn.Connection {
	t.Helper()
	opts = append([]arangoconn.Option{arangoconn.WithRoundTripperFactory(cluster)}, opts...)
	connection, err := arangoconn.NewConnection(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, connection.Close())
	})
	return connection
}

func TestNewConnectionDefaults(t *testing.T) {
	t.Parallel()
	connection := newTestConnection(t, newFakeCluster(okHandler))
	assert.Equal(t, []string{"http://localhost:8529"}, connection.Hosts())
	assert.Equal(t, 0, connection.ActiveHost())
	assert.Equal(t, 30000, connection.ArangoVersion())
	assert.Equal(t, 3, connection.ArangoMajor())
	assert.Equal(t, arangoconn.Stats{Hosts: 1, MaxConcurrency: 6}, connection.Stats())
	database, err := connection.Database()
	require.NoError(t, err)
	assert.Equal(t, "_system", database)

	connection = newTestConnection(t, newFakeCluster(okHandler),
		arangoconn.WithMaxSockets(4),
		arangoconn.WithKeepAlive(false, 0),
		arangoconn.WithArangoVersion(31105),
	)
	assert.Equal(t, 4, connection.Stats().MaxConcurrency)
	assert.Equal(t, 3, connection.ArangoMajor())

	_, err = arangoconn.NewConnection(arangoconn.WithURLs("http://"))
	assert.Error(t, err)
	_, err = arangoconn.NewConnection(arangoconn.WithURLs("ftp://db1:21"))
	assert.Error(t, err)
}

func TestAddHosts(t *testing.T) {
	t.Parallel()
	connection := newTestConnection(t, newFakeCluster(okHandler),
		arangoconn.WithURLs("tcp://db1:8529"),
	)
	indices, err := connection.AddHosts("http://db1:8529", "ssl://db2:8530", "tcp://db3:8529")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indices)
	indices, err = connection.AddHosts("https://db2:8530")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, indices)
	assert.Equal(t, []string{"http://db1:8529", "https://db2:8530", "http://db3:8529"}, connection.Hosts())
}

func TestDatabase(t *testing.T) {
	t.Parallel()
	cluster := newFakeCluster(okHandler)
	connection := newTestConnection(t, cluster, arangoconn.WithURLs("http://db1:8529"))
	require.Error(t, connection.SetDatabase(""))
	require.NoError(t, connection.SetDatabase("shop"))
	database, err := connection.Database()
	require.NoError(t, err)
	assert.Equal(t, "shop", database)
	_, err = connection.Do(context.Background(), &request.Request{Path: []string{"_api", "collection"}})
	require.NoError(t, err)

	absolute := newTestConnection(t, cluster,
		arangoconn.WithURLs("http://db1:8529"),
		arangoconn.WithAbsolute(),
	)
	_, err = absolute.Database()
	assert.ErrorIs(t, err, arangoconn.ErrAbsolute)
	assert.ErrorIs(t, absolute.SetDatabase("shop"), arangoconn.ErrAbsolute)
	_, err = absolute.Do(context.Background(), &request.Request{Path: []string{"_admin", "status"}})
	require.NoError(t, err)

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.Len(t, cluster.requests, 2)
	assert.Equal(t, "/_db/shop/_api/collection", cluster.requests[0].URL.Path)
	assert.Equal(t, "/_admin/status", cluster.requests[1].URL.Path)
}

func TestRequestEncoding(t *testing.T) {
	t.Parallel()
	cluster := newFakeCluster(okHandler)
	connection := newTestConnection(t, cluster,
		arangoconn.WithURLs("http://db1:8529"),
		arangoconn.WithHeaders(http.Header{"X-Client": []string{"default"}}),
		arangoconn.WithArangoVersion(31100),
	)
	connection.SetHeader("Authorization", "bearer token")
	result, err := connection.Do(context.Background(), &request.Request{
		Method: http.MethodPost,
		Path:   []string{"_api", "document", "users"},
		Query:  map[string]string{"returnNew": "true"},
		Body:   map[string]int{"a": 1},
		Header: http.Header{"X-Client": []string{"override"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": true}, result.Body)

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.Len(t, cluster.requests, 1)
	req := cluster.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://db1:8529/_db/_system/_api/document/users?returnNew=true", req.URL.String())
	assert.Equal(t, `{"a":1}`, cluster.bodies[0])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "31100", req.Header.Get("X-Arango-Version"))
	assert.Equal(t, "override", req.Header.Get("X-Client"))
	assert.Equal(t, "bearer token", req.Header.Get("Authorization"))
	assert.Equal(t, int64(7), req.ContentLength)
}

func TestErrorPrecedence(t *testing.T) {
	t.Parallel()
	cluster := newFakeCluster(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"error":true,"code":409,"errorNum":1200,"errorMessage":"conflict"}`), nil
	})
	connection := newTestConnection(t, cluster)
	result, err := connection.Do(context.Background(), &request.Request{Path: []string{"_api", "document", "users", "1"}})
	require.Error(t, err)
	assert.Equal(t, "application error", result.Kind.String())
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 0, result.Host)
}

func TestDoContextDone(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	cluster := newFakeCluster(func(*http.Request) (*http.Response, error) {
		<-release
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	connection := newTestConnection(t, cluster)
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := connection.Do(ctx, &request.Request{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	// the request itself is still in flight
	assert.Equal(t, 1, connection.Stats().Active)
}

func TestClose(t *testing.T) {
	t.Parallel()
	cluster := newFakeCluster(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	connection, err := arangoconn.NewConnection(
		arangoconn.WithRoundTripperFactory(cluster),
		arangoconn.WithMaxSockets(1),
		arangoconn.WithKeepAlive(false, 0),
	)
	require.NoError(t, err)
	inFlight, err := connection.Submit(&request.Request{})
	require.NoError(t, err)
	queued, err := connection.Submit(&request.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, connection.Stats().Queued)

	require.NoError(t, connection.Close())
	require.NoError(t, connection.Close())

	result := <-queued
	assert.ErrorIs(t, result.Err, arangoconn.ErrClosed)
	assert.Equal(t, -1, result.Host)
	result = <-inFlight
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, result.Host)

	_, err = connection.Submit(&request.Request{})
	assert.ErrorIs(t, err, arangoconn.ErrClosed)
	_, err = connection.AddHosts("http://db9:8529")
	assert.ErrorIs(t, err, arangoconn.ErrClosed)
}
