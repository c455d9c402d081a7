package meshcore

import (
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
)

// EventKind identifies an asynchronous notification from the device link.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventMessageWaiting
	EventNewAdvert
	EventAdvert
)

// String returns the event kind's wire-log name.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventMessageWaiting:
		return "message-waiting"
	case EventNewAdvert:
		return "new-advert"
	case EventAdvert:
		return "advert"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification pushed by the device. Exactly which
// payload fields are set depends on Kind.
type Event struct {
	Kind   EventKind
	Err    error                // EventError
	Advert *codec.AdvertPayload // EventNewAdvert
	PubKey []byte               // EventAdvert: bare public key notification
}

// InboundMessage is one queued message drained from the device. Exactly one
// of Contact or Channel is set.
type InboundMessage struct {
	Contact *codec.ContactMessage
	Channel *codec.ChannelMessage
}
