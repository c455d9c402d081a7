package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wombatinua/meshcore-ai/pkg/models"
)

const (
	// maxChannelTextLen is the practical payload limit for a channel send.
	maxChannelTextLen = 135
	// relayQuietWait spaces translation relays out so the destination
	// channel is not hammered.
	relayQuietWait = 10 * time.Second
)

// truncateText caps s at max bytes without splitting a multi-byte rune; the
// limit is a firmware byte budget, so the cut backs up to a rune boundary.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// BotMessage is the normalized event handed to the bot for each source.
type BotMessage struct {
	Source      string
	ChannelIdx  int
	ChannelName string
	Node        *models.NodeInfo
	Name        string
	Text        string
}

// BotConfig selects which channels the bot participates in.
type BotConfig struct {
	// AllowedChannels are the channel indices the bot may reply on.
	AllowedChannels map[int]bool
	// TranslateFrom are the channel indices whose traffic gets relayed.
	TranslateFrom map[int]bool
	// TranslateTo is the destination channel for relayed translations.
	// Nil disables the relay.
	TranslateTo *int
}

// Bot reacts to inbound messages: it relays channel traffic through the
// translator and answers direct mentions of its own name. All reactions are
// soft: failures are logged, never propagated.
type Bot struct {
	device     DeviceLink
	translator Translator
	cfg        BotConfig
	log        *slog.Logger

	mu        sync.Mutex
	selfName  string
	mentionRe *regexp.Regexp

	// relayWait is overridable in tests
	relayWait time.Duration
}

func NewBot(device DeviceLink, translator Translator, cfg BotConfig, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		device:     device,
		translator: translator,
		cfg:        cfg,
		log:        log,
		relayWait:  relayQuietWait,
	}
}

// SetSelfName records the node's own display name, announced after connect,
// and compiles the mention pattern for it. Both "@Name" and "@[Name]" match,
// case-insensitively, with the name's metacharacters taken literally.
func (b *Bot) SetSelfName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selfName = name
	if name == "" {
		b.mentionRe = nil
		return
	}
	quoted := regexp.QuoteMeta(name)
	b.mentionRe = regexp.MustCompile(`(?i)@(?:\[` + quoted + `\]|` + quoted + `)`)
}

// Mentioned reports whether text contains a mention of the bot's name.
func (b *Bot) Mentioned(text string) bool {
	b.mu.Lock()
	re := b.mentionRe
	b.mu.Unlock()
	return re != nil && re.MatchString(text)
}

// Dispatch routes a message to the reaction for its source. It never returns
// an error; every side effect catches its own failures.
func (b *Bot) Dispatch(ctx context.Context, msg *BotMessage) {
	switch msg.Source {
	case SourceContact:
		// observation hook, direct-message auto-reply not enabled
	case SourceAdvert:
		// observation hook
	case SourceChannel:
		b.handleChannel(ctx, msg)
	default:
		b.log.Warn("unknown dispatch source", "source", msg.Source)
	}
}

func (b *Bot) handleChannel(ctx context.Context, msg *BotMessage) {
	if b.cfg.TranslateFrom[msg.ChannelIdx] {
		go b.relayTranslation(ctx, msg)
	}
	if b.cfg.AllowedChannels[msg.ChannelIdx] && b.Mentioned(msg.Text) {
		b.replyToMention(msg)
	}
}

// relayTranslation translates a channel message and forwards it to the
// configured destination channel. It runs detached from the event loop; a
// second message arriving during the quiescent wait starts its own relay.
func (b *Bot) relayTranslation(ctx context.Context, msg *BotMessage) {
	if b.cfg.TranslateTo == nil {
		b.log.Warn("translation relay skipped, no destination channel configured")
		return
	}
	if b.translator == nil {
		b.log.Warn("translation relay skipped, no translator configured")
		return
	}

	name := msg.Name
	if name == "" {
		name = "Unknown"
	}
	budget := maxChannelTextLen - (len(name) + 2)
	if budget < 0 {
		budget = 0
	}

	out, err := b.translator.Translate(ctx, msg.Text, budget)
	if err != nil {
		b.log.Warn("translation failed", "channel", msg.ChannelIdx, "error", err)
		return
	}
	out = strings.TrimSpace(out)
	if out == "" {
		b.log.Warn("translation returned empty text", "channel", msg.ChannelIdx)
		return
	}

	composed := truncateText(name+": "+out, maxChannelTextLen)

	select {
	case <-time.After(b.relayWait):
	case <-ctx.Done():
		return
	}

	if err := b.device.SendChannelTextMessage(*b.cfg.TranslateTo, composed); err != nil {
		b.log.Warn("failed to send translated message",
			"to_channel", *b.cfg.TranslateTo, "error", err)
		return
	}
	b.log.Info("relayed translation",
		"from_channel", msg.ChannelIdx, "to_channel", *b.cfg.TranslateTo, "len", len(composed))
}

func (b *Bot) replyToMention(msg *BotMessage) {
	b.mu.Lock()
	self := b.selfName
	b.mu.Unlock()

	reply := fmt.Sprintf("%s: hello %s, I heard you", self, msg.Name)
	if msg.Name == "" {
		reply = fmt.Sprintf("%s: I heard you", self)
	}
	reply = truncateText(reply, maxChannelTextLen)
	if err := b.device.SendChannelTextMessage(msg.ChannelIdx, reply); err != nil {
		b.log.Warn("failed to send mention reply", "channel", msg.ChannelIdx, "error", err)
		return
	}
	b.log.Info("replied to mention", "channel", msg.ChannelIdx, "from", msg.Name)
}
