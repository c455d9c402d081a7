// Package gateway contains the event pipeline that bridges a MeshCore device
// to the peer directory, the record store and the bot layer, plus the
// connection supervisor that keeps the device session alive.
package gateway

import (
	"context"

	"github.com/wombatinua/meshcore-ai/pkg/meshcore"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
)

// Message sources as seen by the bot dispatcher.
const (
	SourceContact = "contact"
	SourceAdvert  = "advert"
	SourceChannel = "channel"
)

// DeviceLink is the slice of the device client the gateway consumes.
type DeviceLink interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Events() <-chan meshcore.Event

	GetContacts() ([]*models.NodeInfo, error)
	FindContactByPublicKeyPrefix(prefix []byte) (*models.NodeInfo, error)
	GetSelfInfo() (*codec.SelfInfo, error)
	GetChannel(index int) (*codec.ChannelInfo, error)
	GetWaitingMessages() ([]meshcore.InboundMessage, error)

	SyncDeviceTime() error
	SendZeroHopAdvert() error
	SendTextMessage(pubKey []byte, text string, kind uint8) error
	SendChannelTextMessage(channelIdx int, text string) error
}

// Translator is the AI-completion collaborator used for the translation relay.
type Translator interface {
	Translate(ctx context.Context, text string, maxChars int) (string, error)
}
