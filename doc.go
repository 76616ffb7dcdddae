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

// Package arangoconn provides the connection layer of a client for a
// multi-node database cluster, such as ArangoDB, spoken to over HTTP.
// A [Connection] turns logical requests into HTTP requests against one
// of several known endpoints, bounds the number of requests in flight,
// follows the cluster's current leader, and classifies every response
// into exactly one [response.Result].
//
// To create a new connection use the [NewConnection] function:
//
//	connection, err := arangoconn.NewConnection(
//	    arangoconn.WithURLs("tcp://db1:8529", "tcp://db2:8529"),
//	    arangoconn.WithLoadBalancingStrategy(picker.StrategyRoundRobin),
//	)
//
// # Scheduling
//
// Submitted requests enter a single FIFO queue. A request is sent as
// soon as there is a free slot: the number of requests in flight across
// all hosts is bounded by the configured number of sockets per host,
// doubled when keep-alive is enabled (the default, for a bound of 6).
// Requests are sent in the order they were submitted, but results may
// arrive in any order.
//
// There are no timeouts and no retries at this layer. A request that
// fails at the transport level is reported as such; a request whose
// transport never completes occupies its slot until it does.
//
// # Load Balancing and Failover
//
// Every connection has an "active" host, which receives all requests not
// pinned to a specific host. How it changes is decided by the configured
// [picker.Strategy]. Unless the strategy is round-robin, a transport error
// on the active host moves the active host to the next one (failover).
//
// # Leader Redirects
//
// A response with status 503 and an "X-Arango-Endpoint" header tells the
// client that the request must be sent to another node, the leader. The
// endpoint is registered as a host, the request is pinned to it and sent
// again from the back of the queue. If the redirecting host was the active
// host, the leader becomes the active host. Callers never see redirect
// responses, unless the limit set by [WithMaxRedirects] is exceeded.
package arangoconn
