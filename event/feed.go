// Copyright 2014 The go-ethereum Authors
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

// Package event implements a generic typed pub-sub feed, adapted from the
// teacher's event.FeedOf[T]/event.Subscription (see event/feedof_test.go
// and event/example_subscription_test.go in the retrieval pack). Only the
// generic FeedOf is carried forward: this module has a single concrete
// producer of events (the synchronizer's observability events), so the
// older reflect-based untyped Feed is not needed.
package event

import "sync"

// FeedOf implements one-to-many subscription delivery of values of type T.
// The zero value is ready to use.
type FeedOf[T any] struct {
	mu   sync.Mutex
	subs map[*feedSub[T]]struct{}
}

type feedSub[T any] struct {
	channel chan<- T
	errC    chan error
}

// Subscribe adds a channel to the feed. Future sends will be delivered on
// the channel until the subscription is unsubscribed.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*feedSub[T]]struct{})
	}
	sub := &feedSub[T]{channel: channel, errC: make(chan error, 1)}
	f.subs[sub] = struct{}{}
	return &feedOfSub[T]{feed: f, sub: sub}
}

// Send delivers value to all current subscribers. It blocks until every
// subscriber has received the value, and returns the number of
// subscribers it was sent to.
func (f *FeedOf[T]) Send(value T) int {
	f.mu.Lock()
	subs := make([]*feedSub[T], 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	n := 0
	for _, sub := range subs {
		select {
		case sub.channel <- value:
			n++
		case <-sub.errC:
			// unsubscribed concurrently; drop silently
		}
	}
	return n
}

func (f *FeedOf[T]) remove(sub *feedSub[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
}

type feedOfSub[T any] struct {
	feed *FeedOf[T]
	sub  *feedSub[T]
	once sync.Once
}

func (s *feedOfSub[T]) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s.sub)
		close(s.sub.errC)
	})
}

func (s *feedOfSub[T]) Err() <-chan error { return s.sub.errC }
