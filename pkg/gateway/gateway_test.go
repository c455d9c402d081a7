package gateway

import (
	"context"
	"sync"

	"github.com/wombatinua/meshcore-ai/pkg/meshcore"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
)

// fakeDevice is a scriptable DeviceLink recording every call.
type fakeDevice struct {
	mu sync.Mutex

	connectErrs  []error // consumed one per Connect call, then success
	connectCalls int
	// connectBlock, when set, stalls Connect until the channel closes
	connectBlock   chan struct{}
	connectedState bool

	contacts      []*models.NodeInfo
	contactsErr   error
	contactsCalls int

	self *codec.SelfInfo

	channels map[int]*codec.ChannelInfo

	waiting []meshcore.InboundMessage

	syncTimeCalls   int
	zeroHopCalls    int
	sentChannelMsgs []sentChannelMsg
	sentTextMsgs    []sentTextMsg

	events chan meshcore.Event
}

type sentChannelMsg struct {
	idx  int
	text string
}

type sentTextMsg struct {
	pubKey []byte
	text   string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		channels:       make(map[int]*codec.ChannelInfo),
		events:         make(chan meshcore.Event, 16),
		connectedState: true,
	}
}

func (f *fakeDevice) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	block := f.connectBlock
	var err error
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeDevice) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectedState
}

func (f *fakeDevice) Events() <-chan meshcore.Event { return f.events }

func (f *fakeDevice) SyncDeviceTime() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncTimeCalls++
	return nil
}

func (f *fakeDevice) SendZeroHopAdvert() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zeroHopCalls++
	return nil
}

func (f *fakeDevice) GetContacts() ([]*models.NodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactsCalls++
	return f.contacts, f.contactsErr
}

func (f *fakeDevice) FindContactByPublicKeyPrefix(prefix []byte) (*models.NodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.contacts {
		if len(prefix) <= len(n.PublicKey) && string(n.PublicKey[:len(prefix)]) == string(prefix) {
			return n, nil
		}
	}
	return nil, nil
}

func (f *fakeDevice) GetSelfInfo() (*codec.SelfInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.self == nil {
		return &codec.SelfInfo{Name: "TestBot"}, nil
	}
	return f.self, nil
}

func (f *fakeDevice) GetChannel(index int) (*codec.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[index]; ok {
		return ch, nil
	}
	return &codec.ChannelInfo{Index: index}, nil
}

func (f *fakeDevice) GetWaitingMessages() ([]meshcore.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.waiting
	f.waiting = nil
	return msgs, nil
}

func (f *fakeDevice) SendTextMessage(pubKey []byte, text string, kind uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTextMsgs = append(f.sentTextMsgs, sentTextMsg{pubKey: pubKey, text: text})
	return nil
}

func (f *fakeDevice) SendChannelTextMessage(channelIdx int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentChannelMsgs = append(f.sentChannelMsgs, sentChannelMsg{idx: channelIdx, text: text})
	return nil
}

func (f *fakeDevice) channelSends() []sentChannelMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentChannelMsg, len(f.sentChannelMsgs))
	copy(out, f.sentChannelMsgs)
	return out
}

// fakeAdvertStore keeps adverts in memory, keyed by public key.
type fakeAdvertStore struct {
	mu      sync.Mutex
	upserts []*models.AdvertRecord
	byName  map[string][]*models.AdvertRecord
}

func newFakeAdvertStore() *fakeAdvertStore {
	return &fakeAdvertStore{byName: make(map[string][]*models.AdvertRecord)}
}

func (s *fakeAdvertStore) UpsertAdvert(_ context.Context, rec *models.AdvertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, rec)
	return nil
}

func (s *fakeAdvertStore) GetAdverts(_ context.Context, _ int) ([]*models.AdvertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts, nil
}

func (s *fakeAdvertStore) GetAdvertByKey(_ context.Context, pubKey []byte) (*models.AdvertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.upserts {
		if string(rec.PubKey) == string(pubKey) {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *fakeAdvertStore) FindAdvertsByName(_ context.Context, name string, _ int) ([]*models.AdvertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byName[name], nil
}

// fakeMessageStore records every saved message row.
type fakeMessageStore struct {
	mu    sync.Mutex
	saved []*models.MessageRecord
}

func (s *fakeMessageStore) SaveMessage(_ context.Context, rec *models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return nil
}

func (s *fakeMessageStore) GetMessages(_ context.Context, _ int) ([]*models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, nil
}

// fakeTranslator records the requested budget and returns a fixed result.
type fakeTranslator struct {
	mu       sync.Mutex
	result   string
	err      error
	budgets  []int
	requests []string
}

func (t *fakeTranslator) Translate(_ context.Context, text string, maxChars int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budgets = append(t.budgets, maxChars)
	t.requests = append(t.requests, text)
	return t.result, t.err
}
