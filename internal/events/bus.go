/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Playback lifecycle. Started/stopped are command outcomes; finished is
	// renderer-originated (the clip ran out or the process died on its own).
	EventPlaybackStarted  EventType = "playback.started"
	EventPlaybackStopped  EventType = "playback.stopped"
	EventPlaybackFinished EventType = "playback.finished"
	EventPlaybackFailed   EventType = "playback.failed"

	EventVolumeChanged EventType = "volume.changed"

	// Dispatcher outcomes for malformed or unknown remote commands.
	EventCommandRejected EventType = "command.rejected"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Publishing never blocks; a
// subscriber that falls behind loses events rather than stalling producers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}

// String returns a payload value as a string, or "" when absent.
func (p Payload) String(key string) string {
	v, _ := p[key].(string)
	return v
}
