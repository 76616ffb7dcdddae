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

// Package picker provides functionality for picking the endpoint that a
// request is sent to. This is used by an arangoconn.Connection to select
// a host for every dispatched request that is not pinned to a host.
//
// Unlike a stateless picker, a [Balancer] tracks a single "active" host.
// The [Strategy] decides how that active host moves: never on its own
// ([StrategyNone]), after every pick ([StrategyRoundRobin]), or never on
// its own after a random start ([StrategyOneRandom]). Except with
// round-robin, the active host also moves away from a host that fails
// at the transport level (failover). Leader redirects move it as well.
//
// A Balancer is not safe for concurrent use. Its owner is expected to
// serialize access, typically under the same lock that guards the list
// of hosts.
package picker
