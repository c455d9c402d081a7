package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/wombatinua/meshcore-ai/pkg/directory"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
	"github.com/wombatinua/meshcore-ai/pkg/store"
)

const (
	channelNameTTL  = 15 * time.Minute
	nameLookupLimit = 5
)

// Pipeline consumes device events, normalizes them, persists the results and
// hands messages to the bot. Every persistence and dispatch step is wrapped
// so one failure never stops the others.
type Pipeline struct {
	device     DeviceLink
	dir        *directory.Directory
	normalizer *Normalizer
	stores     *store.Stores
	bot        *Bot
	log        *slog.Logger

	channelNames *ttlcache.Cache[int, string]

	// connection lifecycle callbacks, wired to the supervisor
	OnDisconnected func()
	OnError        func(error)
}

func NewPipeline(device DeviceLink, dir *directory.Directory, normalizer *Normalizer,
	stores *store.Stores, bot *Bot, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	cache := ttlcache.New[int, string](
		ttlcache.WithTTL[int, string](channelNameTTL),
	)
	go cache.Start()
	return &Pipeline{
		device:       device,
		dir:          dir,
		normalizer:   normalizer,
		stores:       stores,
		bot:          bot,
		log:          log,
		channelNames: cache,
	}
}

// Run processes device events until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	events := p.device.Events()
	for {
		select {
		case <-ctx.Done():
			p.channelNames.Stop()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handle(ctx, ev)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, ev meshcore.Event) {
	switch ev.Kind {
	case meshcore.EventConnected:
		p.log.Info("device session established")
	case meshcore.EventDisconnected:
		p.log.Warn("device session lost")
		if p.OnDisconnected != nil {
			p.OnDisconnected()
		}
	case meshcore.EventError:
		p.log.Error("device error", "error", ev.Err)
		if p.OnError != nil {
			p.OnError(ev.Err)
		}
	case meshcore.EventMessageWaiting:
		p.drainMessages(ctx)
	case meshcore.EventNewAdvert:
		p.handleAdvert(ctx, ev.Advert)
	case meshcore.EventAdvert:
		p.handleAdvertKey(ctx, ev.PubKey)
	}
}

// handleAdvert merges an advert payload against the directory, persists the
// merged profile and notifies the bot.
func (p *Pipeline) handleAdvert(ctx context.Context, advert *codec.AdvertPayload) {
	if advert == nil {
		return
	}
	partial := &models.NodeInfo{
		PublicKey: append([]byte(nil), advert.PubKey[:]...),
	}
	ts := advert.Timestamp
	partial.LastAdvert = &ts
	if advert.AppData != nil {
		partial.Name = advert.AppData.Name
		nt := advert.AppData.NodeType
		partial.NodeType = &nt
		partial.Latitude = advert.AppData.Lat
		partial.Longitude = advert.AppData.Lon
	}

	ev := p.normalizer.NormalizeAdvert(partial)
	p.dir.Upsert(ev.Node)

	p.log.Info("advert received",
		"pub_key", ev.Node.PublicKeyHex()[:12],
		"name", ev.Node.Name,
		"type", ev.TypeName,
		"last_advert", ev.LastAdvertText,
		"lat", ev.LatitudeText,
		"lon", ev.LongitudeText)

	if err := p.stores.Adverts.UpsertAdvert(ctx, models.AdvertRecordFromNode(ev.Node)); err != nil {
		p.log.Error("failed to persist advert", "error", err)
	}
	p.bot.Dispatch(ctx, &BotMessage{
		Source: SourceAdvert,
		Node:   ev.Node,
		Name:   ev.Node.Name,
	})
}

// handleAdvertKey refreshes a peer we only know by public key, using the
// device contact list as the source of truth.
func (p *Pipeline) handleAdvertKey(ctx context.Context, pubKey []byte) {
	if len(pubKey) == 0 {
		return
	}
	node, err := p.device.FindContactByPublicKeyPrefix(pubKey)
	if err != nil {
		p.log.Debug("contact lookup for advert failed", "error", err)
		return
	}
	if node == nil {
		return
	}
	p.dir.Upsert(node)
	if err := p.stores.Adverts.UpsertAdvert(ctx, models.AdvertRecordFromNode(node)); err != nil {
		p.log.Error("failed to persist advert", "error", err)
	}
	p.bot.Dispatch(ctx, &BotMessage{Source: SourceAdvert, Node: node, Name: node.Name})
}

// drainMessages pulls every queued message off the device and routes each to
// its handler.
func (p *Pipeline) drainMessages(ctx context.Context) {
	msgs, err := p.device.GetWaitingMessages()
	if err != nil {
		p.log.Error("failed to fetch waiting messages", "error", err)
	}
	for _, msg := range msgs {
		switch {
		case msg.Contact != nil:
			p.handleContactMessage(ctx, msg.Contact)
		case msg.Channel != nil:
			p.handleChannelMessage(ctx, msg.Channel)
		}
	}
}

// handleContactMessage resolves the sender by key prefix. An unresolved
// sender is persisted with a null identity and not engaged further.
func (p *Pipeline) handleContactMessage(ctx context.Context, msg *codec.ContactMessage) {
	node := p.dir.LookupByPrefix(msg.PubKeyPrefix[:])
	if node == nil {
		found, err := p.device.FindContactByPublicKeyPrefix(msg.PubKeyPrefix[:])
		if err != nil {
			p.log.Debug("device lookup for contact sender failed", "error", err)
		} else {
			node = found
		}
	}

	rec := &models.MessageRecord{Text: msg.Text}
	st := time.Unix(int64(msg.SenderTime), 0)
	rec.SenderTime = &st
	if node != nil {
		p.dir.Upsert(node)
		rec.PubKey = append([]byte(nil), node.PublicKey...)
		name := node.Name
		rec.Name = &name
	}

	if err := p.stores.Messages.SaveMessage(ctx, rec); err != nil {
		p.log.Error("failed to persist contact message", "error", err)
	}
	if node == nil {
		p.log.Warn("contact message from unknown sender, not engaging",
			"prefix", msg.PubKeyPrefix)
		return
	}

	p.log.Info("contact message", "from", node.Name, "text", msg.Text)
	p.bot.Dispatch(ctx, &BotMessage{
		Source: SourceContact,
		Node:   node,
		Name:   node.Name,
		Text:   msg.Text,
	})
}

// handleChannelMessage splits the conventional "name: text" prefix, resolves
// the sender through the directory, the device and finally the advert store,
// persists the row regardless of resolution and always dispatches to the bot.
func (p *Pipeline) handleChannelMessage(ctx context.Context, msg *codec.ChannelMessage) {
	idx := int(msg.ChannelIdx)
	channelName := p.channelName(idx)
	name, text := SplitChannelText(msg.Text)

	var node *models.NodeInfo
	if name != "" {
		node = p.resolveSenderByName(ctx, name)
	}

	rec := &models.MessageRecord{Text: text}
	chIdx := int16(msg.ChannelIdx)
	rec.ChannelIdx = &chIdx
	if channelName != "" {
		rec.ChannelName = &channelName
	}
	st := time.Unix(int64(msg.SenderTime), 0)
	rec.SenderTime = &st
	if name != "" {
		n := name
		rec.Name = &n
	}
	if node != nil {
		rec.PubKey = append([]byte(nil), node.PublicKey...)
	}

	if err := p.stores.Messages.SaveMessage(ctx, rec); err != nil {
		p.log.Error("failed to persist channel message", "error", err)
	}

	p.log.Info("channel message",
		"channel", idx, "channel_name", channelName, "from", name, "text", text)

	p.bot.Dispatch(ctx, &BotMessage{
		Source:      SourceChannel,
		ChannelIdx:  idx,
		ChannelName: channelName,
		Node:        node,
		Name:        name,
		Text:        text,
	})
}

// resolveSenderByName walks the resolution chain: directory name index,
// device contact refresh, then the advert store. The store fallback only
// resolves when every returned row agrees on a single identity.
func (p *Pipeline) resolveSenderByName(ctx context.Context, name string) *models.NodeInfo {
	node, err := p.dir.ResolveByName(name, p.device.GetContacts)
	if err != nil {
		p.log.Debug("device refresh during name resolution failed", "name", name, "error", err)
	}
	if node != nil {
		return node
	}

	recs, err := p.stores.Adverts.FindAdvertsByName(ctx, name, nameLookupLimit)
	if err != nil {
		p.log.Debug("advert store lookup by name failed", "name", name, "error", err)
		return nil
	}
	if len(recs) == 0 {
		return nil
	}
	first := recs[0]
	for _, r := range recs[1:] {
		if string(r.PubKey) != string(first.PubKey) {
			p.log.Debug("name is ambiguous in advert history, leaving unresolved", "name", name)
			return nil
		}
	}
	node = models.NodeFromAdvertRecord(first)
	p.dir.Upsert(node)
	return node
}

func (p *Pipeline) channelName(idx int) string {
	if item := p.channelNames.Get(idx); item != nil {
		return item.Value()
	}
	info, err := p.device.GetChannel(idx)
	if err != nil {
		p.log.Debug("failed to read channel info", "channel", idx, "error", err)
		return ""
	}
	p.channelNames.Set(idx, info.Name, ttlcache.DefaultTTL)
	return info.Name
}
