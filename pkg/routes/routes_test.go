package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wombatinua/meshcore-ai/pkg/directory"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
	"github.com/wombatinua/meshcore-ai/pkg/store"
)

type fakeDevice struct {
	rebooted        bool
	setChannels     []string
	sentChannelMsgs []string
}

func (f *fakeDevice) Reboot() error {
	f.rebooted = true
	return nil
}

func (f *fakeDevice) SyncDeviceTime() error    { return nil }
func (f *fakeDevice) SendFloodAdvert() error   { return nil }
func (f *fakeDevice) SendZeroHopAdvert() error { return nil }

func (f *fakeDevice) GetSelfInfo() (*codec.SelfInfo, error) {
	return &codec.SelfInfo{Name: "Self"}, nil
}

func (f *fakeDevice) GetContacts() ([]*models.NodeInfo, error) {
	return []*models.NodeInfo{{PublicKey: make([]byte, 32), Name: "Peer"}}, nil
}

func (f *fakeDevice) GetChannels() ([]*codec.ChannelInfo, error) {
	return []*codec.ChannelInfo{{Index: 0, Name: "general"}}, nil
}

func (f *fakeDevice) GetChannel(index int) (*codec.ChannelInfo, error) {
	return &codec.ChannelInfo{Index: index, Name: "general"}, nil
}

func (f *fakeDevice) SetChannel(index int, name string, secret []byte) error {
	f.setChannels = append(f.setChannels, name)
	return nil
}

func (f *fakeDevice) DeleteChannel(index int) error { return nil }

func (f *fakeDevice) SendTextMessage(pubKey []byte, text string, kind uint8) error {
	return nil
}

func (f *fakeDevice) SendChannelTextMessage(channelIdx int, text string) error {
	f.sentChannelMsgs = append(f.sentChannelMsgs, text)
	return nil
}

func newTestRouter() (*ApiRouter, *fakeDevice) {
	device := &fakeDevice{}
	dir := directory.New(nil)
	stores := &store.Stores{}
	return NewApiRouter("/api/action", device, dir, stores, nil), device
}

func post(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/action", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) actionResponse {
	t.Helper()
	var resp actionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	return resp
}

func TestUnknownAction(t *testing.T) {
	ar, _ := newTestRouter()
	w := post(t, ar.Handler(), map[string]any{"action": "frobnicate"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeResponse(t, w); resp.OK {
		t.Fatal("ok must be false for unknown action")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ar, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/action", nil)
	w := httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestInvalidBody(t *testing.T) {
	ar, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/action", bytes.NewReader([]byte("{nope")))
	w := httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestReboot(t *testing.T) {
	ar, device := newTestRouter()
	w := post(t, ar.Handler(), map[string]any{"action": "reboot"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !device.rebooted {
		t.Fatal("reboot not forwarded to device")
	}
}

func TestSetChannelValidation(t *testing.T) {
	ar, device := newTestRouter()
	h := ar.Handler()

	tests := []struct {
		name       string
		params     map[string]any
		wantStatus int
	}{
		{"bad hex", map[string]any{"index": 1, "name": "x", "secret": "zz"}, http.StatusBadRequest},
		{"short secret", map[string]any{"index": 1, "name": "x", "secret": "aabb"}, http.StatusBadRequest},
		{"missing name", map[string]any{"index": 1, "secret": "00000000000000000000000000000000"}, http.StatusBadRequest},
		{"valid", map[string]any{"index": 1, "name": "general", "secret": "00000000000000000000000000000000"}, http.StatusOK},
	}
	for _, tt := range tests {
		w := post(t, h, map[string]any{"action": "set-channel", "params": tt.params})
		if w.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.wantStatus, w.Body.String())
		}
	}
	if len(device.setChannels) != 1 || device.setChannels[0] != "general" {
		t.Fatalf("setChannels = %v", device.setChannels)
	}
}

func TestSetChannelReturnsHash(t *testing.T) {
	ar, _ := newTestRouter()
	w := post(t, ar.Handler(), map[string]any{
		"action": "set-channel",
		"params": map[string]any{
			"index":  0,
			"name":   "general",
			"secret": "00000000000000000000000000000000",
		},
	})
	resp := decodeResponse(t, w)
	if !resp.OK {
		t.Fatalf("response not ok: %s", w.Body.String())
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if _, ok := result["channel_hash"]; !ok {
		t.Fatal("channel_hash missing from result")
	}
}

func TestSendMessageValidation(t *testing.T) {
	ar, _ := newTestRouter()
	h := ar.Handler()

	w := post(t, h, map[string]any{
		"action": "send-message",
		"params": map[string]any{"pub_key": "not-hex", "text": "hi"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad hex: status = %d, want 400", w.Code)
	}

	w = post(t, h, map[string]any{
		"action": "send-message",
		"params": map[string]any{"pub_key": "aabb", "text": "hi"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short key: status = %d, want 400", w.Code)
	}

	w = post(t, h, map[string]any{
		"action": "send-message",
		"params": map[string]any{"pub_key": "aabbccddeeff", "text": "hi"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("valid: status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
}

func TestSendChannelMessage(t *testing.T) {
	ar, device := newTestRouter()
	w := post(t, ar.Handler(), map[string]any{
		"action": "send-channel-message",
		"params": map[string]any{"index": 2, "text": "hello mesh"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if len(device.sentChannelMsgs) != 1 || device.sentChannelMsgs[0] != "hello mesh" {
		t.Fatalf("sent = %v", device.sentChannelMsgs)
	}
}

func TestNodesListsDirectory(t *testing.T) {
	device := &fakeDevice{}
	dir := directory.New(nil)
	pub := make([]byte, 32)
	pub[0] = 0x01
	dir.Upsert(&models.NodeInfo{PublicKey: pub, Name: "Rover"})
	ar := NewApiRouter("/api/action", device, dir, &store.Stores{}, nil)

	w := post(t, ar.Handler(), map[string]any{"action": "nodes"})
	resp := decodeResponse(t, w)
	if !resp.OK {
		t.Fatalf("response not ok: %s", w.Body.String())
	}
	list, ok := resp.Result.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("result = %v", resp.Result)
	}
}
