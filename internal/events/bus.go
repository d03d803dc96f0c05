// Package events provides the typed publish/subscribe bus on which the
// Controller publishes session lifecycle and message events without
// knowing who, if anyone, is listening.
package events

import "github.com/cskr/pubsub"

// Topic names used across the server side of chatwire.
const (
	TopicSessionClosed  = "session.closed"
	TopicSessionMessage = "session.message"
)

// SessionClosed is published once per session, after its transport has
// been torn down.
type SessionClosed struct {
	UID uint32
}

// SessionMessage is published for every inbound Request frame a session
// decodes successfully.
type SessionMessage struct {
	UID     uint32
	Method  string
	ReqID   uint32
	Payload []byte
}

// Bus wraps cskr/pubsub with typed Publish/Subscribe helpers so callers
// never deal with `any` or type assertions directly.
type Bus struct {
	ps *pubsub.PubSub
}

// NewBus constructs a Bus with the given per-subscriber channel buffer
// size (mirrors pubsub.New's capacity argument).
func NewBus(bufferSize int) *Bus {
	return &Bus{ps: pubsub.New(bufferSize)}
}

// SubClosed subscribes to session-closed events.
func (b *Bus) SubClosed() chan any { return b.ps.Sub(TopicSessionClosed) }

// SubMessage subscribes to session-message events.
func (b *Bus) SubMessage() chan any { return b.ps.Sub(TopicSessionMessage) }

// PublishClosed publishes a SessionClosed event. Through pubsub.TryPub,
// this drops the event for any subscriber whose channel is currently full
// rather than blocking the publisher.
func (b *Bus) PublishClosed(e SessionClosed) { b.ps.TryPub(e, TopicSessionClosed) }

// PublishMessage publishes a SessionMessage event, with the same
// drop-when-full policy as PublishClosed.
func (b *Bus) PublishMessage(e SessionMessage) { b.ps.TryPub(e, TopicSessionMessage) }

// Unsub removes ch from every topic it was subscribed to and closes it.
func (b *Bus) Unsub(ch chan any) { b.ps.Unsub(ch) }

// Shutdown closes the underlying pubsub, closing every subscriber channel.
func (b *Bus) Shutdown() { b.ps.Shutdown() }
