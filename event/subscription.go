// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package event

import "sync"

// Subscription represents a stream of events. The carrier of the events is
// typically a channel, but isn't part of the interface itself.
//
// Subscriptions can fail while established. Failures are reported through an
// error channel. It is safe to call Unsubscribe multiple times.
type Subscription interface {
	// Unsubscribe cancels the sending of events to the data channel
	// and closes the error channel.
	Unsubscribe()
	// Err returns the subscription's error channel, closed when the
	// subscription ends.
	Err() <-chan error
}

// SubscriptionScope provides a facility to unsubscribe multiple
// subscriptions at once, used by the synchronizer to tear down every
// consumer it created for its own events on stop().
type SubscriptionScope struct {
	mu     sync.Mutex
	subs   map[*scopeSub]struct{}
	closed bool
}

type scopeSub struct {
	sc *SubscriptionScope
	s  Subscription
}

// Track starts tracking a subscription. If the scope is closed, Track
// returns nil immediately instead of the wrapped subscription, and the
// caller's original subscription is unsubscribed.
func (sc *SubscriptionScope) Track(s Subscription) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		s.Unsubscribe()
		return nil
	}
	if sc.subs == nil {
		sc.subs = make(map[*scopeSub]struct{})
	}
	ss := &scopeSub{sc: sc, s: s}
	sc.subs[ss] = struct{}{}
	return ss
}

// Close calls Unsubscribe on every tracked subscription and prevents the
// scope from tracking any further subscriptions.
func (sc *SubscriptionScope) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	for ss := range sc.subs {
		ss.s.Unsubscribe()
	}
	sc.subs = nil
}

// Count returns the number of tracked subscriptions. It is meant to be
// used for diagnostics.
func (sc *SubscriptionScope) Count() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.subs)
}

func (ss *scopeSub) Unsubscribe() {
	ss.s.Unsubscribe()
	ss.sc.mu.Lock()
	defer ss.sc.mu.Unlock()
	delete(ss.sc.subs, ss)
}

func (ss *scopeSub) Err() <-chan error { return ss.s.Err() }
