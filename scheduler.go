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
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bufbuild/arangoconn/conn"
	"github.com/bufbuild/arangoconn/request"
	"github.com/bufbuild/arangoconn/response"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// task is the lifecycle state of one submitted request. A task that is
// redirected to the leader is requeued as is; it ends when a result is
// sent on done.
type task struct {
	id        uuid.UUID
	wire      *request.Wire
	binary    bool
	pinned    int
	redirects int
	submitted time.Time
	done      chan response.Result
}

// call is a task that has been assigned a host and a concurrency slot.
type call struct {
	task *task
	host int
	conn conn.Conn
}

// Submit encodes the given request and queues it. The returned channel
// receives exactly one result. Requests are sent in submission order,
// but results may arrive in any order.
func (c *Connection) Submit(req *request.Request) (<-chan response.Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	opts := c.encodeOptionsLocked()
	c.mu.Unlock()

	wire, err := request.Encode(req, opts)
	if err != nil {
		return nil, err
	}
	t := &task{
		id:        uuid.New(),
		wire:      wire,
		binary:    req.Binary,
		pinned:    -1,
		submitted: c.clock.Now(),
		done:      make(chan response.Result, 1),
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.queue = append(c.queue, t)
	calls := c.dispatchLocked()
	c.mu.Unlock()
	c.start(calls)
	return t.done, nil
}

// dispatchLocked takes tasks off the front of the queue for as long as
// there is a free concurrency slot, and assigns each a host.
func (c *Connection) dispatchLocked() []call {
	var calls []call
	for len(c.queue) > 0 && c.active < c.maxConcurrency {
		t := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		host := t.pinned
		if host < 0 {
			host = c.balancer.Pick(c.hosts.Len())
		}
		c.active++
		calls = append(calls, call{task: t, host: host, conn: c.hosts.Get(host)})
	}
	return calls
}

func (c *Connection) start(calls []call) {
	for _, cl := range calls {
		go c.run(cl)
	}
}

func (c *Connection) run(cl call) {
	c.taskLogger(cl).Debug("dispatching request")
	resp, err := c.roundTrip(cl)
	c.complete(cl, resp, err)
}

// roundTrip sends the call's request and reads the whole response. A
// response body that cannot be read counts as a transport failure.
func (c *Connection) roundTrip(cl call) (*response.Response, error) {
	req, err := cl.task.wire.NewHTTPRequest(c.ctx, cl.conn.URL())
	if err != nil {
		return nil, err
	}
	httpResp, err := cl.conn.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &response.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// complete releases the call's concurrency slot, updates routing state,
// and then either requeues the task (leader redirect) or delivers its
// result. Either way, the dispatch loop runs again to fill free slots.
func (c *Connection) complete(cl call, resp *response.Response, err error) {
	logger := c.taskLogger(cl)
	c.mu.Lock()
	c.active--
	terminal := true
	switch {
	case err != nil:
		if c.balancer.OnTransportError(cl.host, c.hosts.Len()) {
			logger.WithError(err).WithField("active", c.balancer.Active()).Warn("transport error, failing over")
		} else {
			logger.WithError(err).Debug("transport error")
		}
	case c.closed:
		// redirects are not followed once closed
	default:
		terminal = !c.redirectLocked(cl, resp, logger)
	}
	calls := c.dispatchLocked()
	c.mu.Unlock()

	if terminal {
		var result response.Result
		if err != nil {
			result = response.TransportFailure(err)
		} else {
			result = response.Classify(resp, cl.task.binary)
			logger.WithFields(logrus.Fields{
				"status": resp.StatusCode,
				"kind":   result.Kind.String(),
			}).Debug("request completed")
		}
		result.Host = cl.host
		c.finish(cl.task, result)
	}
	c.start(calls)
}

// redirectLocked follows a leader redirect, if the response is one: a
// 503 with the leader's endpoint in a header. The leader is registered,
// the task is pinned to it and moved to the back of the queue. It
// reports whether the task was requeued.
func (c *Connection) redirectLocked(cl call, resp *response.Response, logger logrus.FieldLogger) bool {
	if resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	endpoint := resp.Header.Get(request.HeaderEndpoint)
	if endpoint == "" {
		return false
	}
	t := cl.task
	if c.maxRedirects > 0 && t.redirects >= c.maxRedirects {
		logger.WithField("redirects", t.redirects).Warn("too many leader redirects, not following")
		return false
	}
	indices, err := c.hosts.Register(endpoint)
	if err != nil {
		logger.WithError(err).WithField("leader", endpoint).Warn("invalid leader endpoint, not following")
		return false
	}
	leader := indices[0]
	t.pinned = leader
	t.redirects++
	c.balancer.OnRedirect(cl.host, leader)
	c.queue = append(c.queue, t)
	logger.WithFields(logrus.Fields{
		"leader":    c.hosts.Get(leader).URL(),
		"redirects": t.redirects,
	}).Info("following leader redirect")
	return true
}

func (c *Connection) finish(t *task, result response.Result) {
	result.Elapsed = c.clock.Since(t.submitted)
	t.done <- result
}

func (c *Connection) taskLogger(cl call) logrus.FieldLogger {
	return c.logger.WithFields(logrus.Fields{
		"task": cl.task.id.String(),
		"host": cl.conn.URL(),
	})
}
