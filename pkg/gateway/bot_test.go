package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestBot(device *fakeDevice, tr Translator, cfg BotConfig) *Bot {
	b := NewBot(device, tr, cfg, nil)
	b.relayWait = time.Millisecond
	return b
}

func TestMentionMatching(t *testing.T) {
	b := newTestBot(newFakeDevice(), nil, BotConfig{})
	b.SetSelfName("Sol-E")

	tests := []struct {
		text string
		want bool
	}{
		{"hey @Sol-E are you there", true},
		{"hey @[Sol-E]", true},
		{"HEY @SOL-E", true},
		{"hey solely there", false},
		{"sol-e without at sign", false},
		{"unbalanced @[Sol-E bracket", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := b.Mentioned(tt.text); got != tt.want {
			t.Errorf("Mentioned(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestMentionNameEscaping(t *testing.T) {
	b := newTestBot(newFakeDevice(), nil, BotConfig{})
	b.SetSelfName("Node(1)")
	if !b.Mentioned("ping @Node(1) please") {
		t.Error("literal metacharacters in the name must match")
	}
	if b.Mentioned("ping @Node-1 please") {
		t.Error("regex interpretation of the name must not leak through")
	}
}

func TestNoReplyWithoutMention(t *testing.T) {
	device := newFakeDevice()
	b := newTestBot(device, nil, BotConfig{AllowedChannels: map[int]bool{3: true}})
	b.SetSelfName("Base")

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 3,
		Name:       "Rover",
		Text:       "ping",
	})

	if sends := device.channelSends(); len(sends) != 0 {
		t.Fatalf("expected no sends, got %v", sends)
	}
}

func TestMentionReplyOnAllowedChannel(t *testing.T) {
	device := newFakeDevice()
	b := newTestBot(device, nil, BotConfig{AllowedChannels: map[int]bool{3: true}})
	b.SetSelfName("Base")

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 3,
		Name:       "Rover",
		Text:       "hello @Base",
	})

	sends := device.channelSends()
	if len(sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sends))
	}
	if sends[0].idx != 3 {
		t.Fatalf("reply went to channel %d, want 3", sends[0].idx)
	}
}

func TestNoReplyOnDisallowedChannel(t *testing.T) {
	device := newFakeDevice()
	b := newTestBot(device, nil, BotConfig{AllowedChannels: map[int]bool{3: true}})
	b.SetSelfName("Base")

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 5,
		Text:       "hello @Base",
	})

	if sends := device.channelSends(); len(sends) != 0 {
		t.Fatalf("expected no sends on disallowed channel, got %v", sends)
	}
}

func waitForSends(t *testing.T, device *fakeDevice, n int) []sentChannelMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sends := device.channelSends(); len(sends) >= n {
			return sends
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends", n)
	return nil
}

func TestTranslationRelay(t *testing.T) {
	device := newFakeDevice()
	tr := &fakeTranslator{result: "hello world"}
	dest := 2
	b := newTestBot(device, tr, BotConfig{
		TranslateFrom: map[int]bool{1: true},
		TranslateTo:   &dest,
	})

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 1,
		Name:       "Rover",
		Text:       "hallo welt",
	})

	sends := waitForSends(t, device, 1)
	if sends[0].idx != 2 {
		t.Fatalf("relay went to channel %d, want 2", sends[0].idx)
	}
	if sends[0].text != "Rover: hello world" {
		t.Fatalf("relayed text = %q", sends[0].text)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	wantBudget := 135 - (len("Rover") + 2)
	if len(tr.budgets) != 1 || tr.budgets[0] != wantBudget {
		t.Fatalf("budgets = %v, want [%d]", tr.budgets, wantBudget)
	}
}

func TestTranslationRelayUnknownSender(t *testing.T) {
	device := newFakeDevice()
	tr := &fakeTranslator{result: "ok"}
	dest := 2
	b := newTestBot(device, tr, BotConfig{
		TranslateFrom: map[int]bool{1: true},
		TranslateTo:   &dest,
	})

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 1,
		Text:       "anon text",
	})

	sends := waitForSends(t, device, 1)
	if sends[0].text != "Unknown: ok" {
		t.Fatalf("relayed text = %q", sends[0].text)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.budgets[0] != 135-(len("Unknown")+2) {
		t.Fatalf("budget = %d", tr.budgets[0])
	}
}

func TestTranslationRelayTruncation(t *testing.T) {
	device := newFakeDevice()
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	tr := &fakeTranslator{result: string(long)}
	dest := 2
	b := newTestBot(device, tr, BotConfig{
		TranslateFrom: map[int]bool{1: true},
		TranslateTo:   &dest,
	})

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 1,
		Name:       "A",
		Text:       "in",
	})

	sends := waitForSends(t, device, 1)
	if len(sends[0].text) != 135 {
		t.Fatalf("composed length = %d, want hard cap 135", len(sends[0].text))
	}
}

func TestTruncateTextRuneBoundary(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdef", 3, "abc"},
		{"ééé", 3, "é"},  // cut would land mid-rune, backs up one byte
		{"ééé", 4, "éé"}, // cut on a boundary stays put
		{"é", 1, ""},
	}
	for _, tt := range tests {
		if got := truncateText(tt.input, tt.max); got != tt.want {
			t.Errorf("truncateText(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestTranslationRelayTruncationKeepsValidUTF8(t *testing.T) {
	device := newFakeDevice()
	// one ASCII byte shifts the 135 cut into the middle of a 2-byte rune
	tr := &fakeTranslator{result: "z" + strings.Repeat("é", 120)}
	dest := 2
	b := newTestBot(device, tr, BotConfig{
		TranslateFrom: map[int]bool{1: true},
		TranslateTo:   &dest,
	})

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 1,
		Name:       "A",
		Text:       "in",
	})

	sends := waitForSends(t, device, 1)
	if len(sends[0].text) > 135 {
		t.Fatalf("composed length = %d, want <= 135", len(sends[0].text))
	}
	if !utf8.ValidString(sends[0].text) {
		t.Fatalf("truncation split a rune: %q", sends[0].text)
	}
}

func TestTranslationFailureIsSoft(t *testing.T) {
	device := newFakeDevice()
	tr := &fakeTranslator{err: errors.New("model offline")}
	dest := 2
	b := newTestBot(device, tr, BotConfig{
		TranslateFrom: map[int]bool{1: true},
		TranslateTo:   &dest,
	})

	b.Dispatch(context.Background(), &BotMessage{
		Source:     SourceChannel,
		ChannelIdx: 1,
		Text:       "text",
	})

	time.Sleep(50 * time.Millisecond)
	if sends := device.channelSends(); len(sends) != 0 {
		t.Fatalf("failed translation must not send, got %v", sends)
	}
}

func TestDispatchObservationSources(t *testing.T) {
	device := newFakeDevice()
	b := newTestBot(device, nil, BotConfig{})

	// contact and advert sources are observation hooks; unknown sources
	// hit the logged default. None may send or panic.
	for _, src := range []string{SourceContact, SourceAdvert, "bogus"} {
		b.Dispatch(context.Background(), &BotMessage{Source: src, Text: "x"})
	}
	if sends := device.channelSends(); len(sends) != 0 {
		t.Fatalf("observation sources must not send, got %v", sends)
	}
}
