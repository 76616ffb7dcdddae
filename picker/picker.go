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

package picker

import (
	"fmt"
	"strings"
)

// Strategy identifies how the active host changes over time. It is
// fixed for the lifetime of a connection.
type Strategy int

const (
	// StrategyNone keeps the active host until a failover or a leader
	// redirect moves it. This is the default.
	StrategyNone Strategy = iota
	// StrategyRoundRobin advances the active host on every pick. Failover
	// is disabled, since the rotation already spreads requests away from
	// a bad host.
	StrategyRoundRobin
	// StrategyOneRandom starts at a uniformly random host and then
	// behaves like StrategyNone.
	StrategyOneRandom
)

// ParseStrategy converts a strategy name, as used in configuration
// files ("NONE", "ROUND_ROBIN", "ONE_RANDOM"), to a Strategy. Matching
// is case-insensitive.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "NONE":
		return StrategyNone, nil
	case "ROUND_ROBIN":
		return StrategyRoundRobin, nil
	case "ONE_RANDOM":
		return StrategyOneRandom, nil
	default:
		return StrategyNone, fmt.Errorf("unknown load balancing strategy %q", name)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "NONE"
	case StrategyRoundRobin:
		return "ROUND_ROBIN"
	case StrategyOneRandom:
		return "ONE_RANDOM"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Rand is the source of randomness used by StrategyOneRandom. A
// *rand.Rand from the "math/rand" package satisfies it.
type Rand interface {
	Intn(n int) int
}

// Balancer holds the active host index for a connection.
type Balancer struct {
	strategy Strategy
	active   int
}

// New returns a Balancer for the given strategy and number of hosts,
// which must be at least one. The given rnd is only consulted for
// StrategyOneRandom, and may be nil otherwise.
func New(strategy Strategy, numHosts int, rnd Rand) *Balancer {
	b := &Balancer{strategy: strategy}
	if strategy == StrategyOneRandom {
		b.active = randomStart(rnd, numHosts)
	}
	return b
}

// Strategy returns the strategy this balancer was created with.
func (b *Balancer) Strategy() Strategy {
	return b.strategy
}

// Active returns the index of the currently active host.
func (b *Balancer) Active() int {
	return b.active
}

// FailoverEnabled reports whether transport errors move the active host.
func (b *Balancer) FailoverEnabled() bool {
	return b.strategy != StrategyRoundRobin
}

// Pick returns the host to use for a request that is not pinned to a
// host. With StrategyRoundRobin, the active host advances after it is
// read, regardless of how the request eventually turns out.
func (b *Balancer) Pick(numHosts int) int {
	picked := b.active
	if b.strategy == StrategyRoundRobin {
		b.active = next(b.active, numHosts)
	}
	return picked
}

// OnTransportError records that a request sent to the given host failed
// without producing a response. If failover is enabled, more than one
// host exists, and the failed host is still the active one, the active
// host advances by one. It reports whether the active host moved.
func (b *Balancer) OnTransportError(failed, numHosts int) bool {
	if !b.FailoverEnabled() || numHosts <= 1 || b.active != failed {
		return false
	}
	b.active = next(b.active, numHosts)
	return true
}

// OnRedirect records that the given host answered with a redirect to the
// leader host. If the answering host is the active one, the leader
// becomes the active host. It reports whether the active host moved.
func (b *Balancer) OnRedirect(answered, leader int) bool {
	if b.active != answered || answered == leader {
		return false
	}
	b.active = leader
	return true
}
