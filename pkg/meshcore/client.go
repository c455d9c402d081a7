// Package meshcore implements the companion-protocol client for a MeshCore
// node reachable over TCP or a local serial device file.
package meshcore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
)

const (
	appName         = "meshai"
	requestTimeout  = 5 * time.Second
	contactsTimeout = 30 * time.Second
	eventBuffer     = 64
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrDeviceError  = errors.New("device returned error")
)

// waiter receives frames for one or more response codes. A stream waiter
// stays registered until removed; a one-shot waiter is consumed by the first
// matching frame.
type waiter struct {
	ch     chan []byte
	stream bool
}

// Client talks the MeshCore companion serial-frame protocol. All request
// methods serialize device I/O through an internal mutex; unsolicited frames
// surface on the Events channel.
type Client struct {
	addr string

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	connected bool
	self      *codec.SelfInfo

	ioMu sync.Mutex

	waitersMu sync.Mutex
	waiters   map[byte][]*waiter

	events chan Event
	log    *slog.Logger
}

// NewClient creates a client for the given address. An absolute filesystem
// path is opened as a serial device file; anything else is dialed as TCP
// host:port.
func NewClient(addr string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		addr:    addr,
		waiters: make(map[byte][]*waiter),
		events:  make(chan Event, eventBuffer),
		log:     log,
	}
}

// Events returns the stream of asynchronous device notifications.
func (c *Client) Events() <-chan Event {
	return c.events
}

// IsConnected reports whether a device session is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the transport, performs the app-start handshake and starts
// the background read loop. Any prior session is torn down first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.connected = false
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("open device %s: %w", c.addr, err)
	}

	self, err := handshake(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("meshcore handshake: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.self = self
	c.mu.Unlock()

	c.log.Info("connected to meshcore node",
		"addr", c.addr,
		"self_name", self.Name,
		"pub_key", hex.EncodeToString(self.PublicKey[:8]))

	go c.readLoop(conn)
	c.emit(Event{Kind: EventConnected})
	return nil
}

// Disconnect closes the transport. The read loop notices and emits a
// disconnected event.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.connected = false
	return err
}

func (c *Client) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if filepath.IsAbs(c.addr) {
		return os.OpenFile(c.addr, os.O_RDWR, 0)
	}
	var d net.Dialer
	d.Timeout = requestTimeout
	return d.DialContext(ctx, "tcp", c.addr)
}

// handshake sends AppStart and waits for the SELF_INFO response using direct
// frame I/O; the read loop is not running yet.
func handshake(conn io.ReadWriteCloser) (*codec.SelfInfo, error) {
	if err := writeFrame(conn, codec.BuildAppStart(appName)); err != nil {
		return nil, fmt.Errorf("send app start: %w", err)
	}
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return nil, fmt.Errorf("read self info: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		// Pushes may already be queued on the wire; skip until SELF_INFO.
		if frame[0] >= 0x80 {
			continue
		}
		if frame[0] != codec.RespSelfInfo {
			return nil, fmt.Errorf("expected SELF_INFO, got 0x%02x", frame[0])
		}
		return codec.ParseSelfInfo(frame)
	}
}

func writeFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 3+len(payload))
	frame[0] = codec.FrameMarkerOut
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(payload)))
	copy(frame[3:], payload)
	if d, ok := w.(interface{ SetWriteDeadline(time.Time) error }); ok {
		d.SetWriteDeadline(time.Now().Add(requestTimeout))
	}
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, 3)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if head[0] != codec.FrameMarkerIn {
		return nil, fmt.Errorf("unexpected frame marker 0x%02x", head[0])
	}
	size := binary.LittleEndian.Uint16(head[1:3])
	if size > codec.MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Client) readLoop(conn io.ReadWriteCloser) {
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.mu.Lock()
			stale := c.conn != conn
			if !stale {
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()
			if !stale {
				c.log.Warn("device read loop terminated", "error", err)
				c.emit(Event{Kind: EventError, Err: err})
				c.emit(Event{Kind: EventDisconnected})
			}
			return
		}
		c.deliver(frame)
	}
}

// deliver routes a frame to the first registered waiter for its code, or
// treats it as an unsolicited push.
func (c *Client) deliver(frame []byte) {
	if len(frame) == 0 {
		return
	}
	code := frame[0]

	c.waitersMu.Lock()
	queue := c.waiters[code]
	if len(queue) > 0 {
		w := queue[0]
		if !w.stream {
			c.waiters[code] = queue[1:]
		}
		c.waitersMu.Unlock()
		select {
		case w.ch <- frame:
		default:
			c.log.Warn("waiter channel full, dropping frame", "code", fmt.Sprintf("0x%02x", code))
		}
		return
	}
	c.waitersMu.Unlock()

	c.handlePush(frame)
}

func (c *Client) handlePush(frame []byte) {
	switch frame[0] {
	case codec.PushMsgWaiting:
		c.emit(Event{Kind: EventMessageWaiting})
	case codec.PushNewAdvert:
		advert, err := codec.ParseAdvertPayload(frame[1:])
		if err != nil {
			c.log.Debug("failed to parse advert push", "error", err)
			return
		}
		c.emit(Event{Kind: EventNewAdvert, Advert: advert})
	case codec.PushAdvert:
		if len(frame) < 33 {
			return
		}
		c.emit(Event{Kind: EventAdvert, PubKey: append([]byte(nil), frame[1:33]...)})
	default:
		c.log.Debug("ignoring push frame", "code", fmt.Sprintf("0x%02x", frame[0]), "len", len(frame))
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping event", "kind", ev.Kind.String())
	}
}

func (c *Client) addWaiter(stream bool, buffer int, codes ...byte) *waiter {
	w := &waiter{ch: make(chan []byte, buffer), stream: stream}
	c.waitersMu.Lock()
	for _, code := range codes {
		c.waiters[code] = append(c.waiters[code], w)
	}
	c.waitersMu.Unlock()
	return w
}

func (c *Client) removeWaiter(w *waiter, codes ...byte) {
	c.waitersMu.Lock()
	for _, code := range codes {
		queue := c.waiters[code]
		for i, q := range queue {
			if q == w {
				c.waiters[code] = append(queue[:i], queue[i+1:]...)
				break
			}
		}
	}
	c.waitersMu.Unlock()
}

func (c *Client) send(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return writeFrame(conn, payload)
}

// request sends a command and waits for the first frame carrying one of the
// expected codes.
func (c *Client) request(payload []byte, codes ...byte) ([]byte, error) {
	w := c.addWaiter(false, 1, codes...)
	defer c.removeWaiter(w, codes...)

	if err := c.send(payload); err != nil {
		return nil, err
	}
	select {
	case frame := <-w.ch:
		return frame, nil
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("timeout waiting for response 0x%02x", codes[0])
	}
}

// requestOK sends a command that answers with a bare OK or ERR frame.
func (c *Client) requestOK(payload []byte) error {
	frame, err := c.request(payload, codec.RespOK, codec.RespErr)
	if err != nil {
		return err
	}
	if frame[0] == codec.RespErr {
		if len(frame) >= 2 {
			return fmt.Errorf("%w: code 0x%02x", ErrDeviceError, frame[1])
		}
		return ErrDeviceError
	}
	return nil
}

// Reboot asks the node to restart. The session drops as a side effect.
func (c *Client) Reboot() error {
	payload := append([]byte{codec.CmdReboot}, []byte("reboot")...)
	return c.send(payload)
}

// SyncDeviceTime sets the node clock to the host's current time.
func (c *Client) SyncDeviceTime() error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	return c.requestOK(codec.BuildSetDeviceTime(uint32(time.Now().Unix())))
}

// SendFloodAdvert broadcasts a flood-routed self advertisement.
func (c *Client) SendFloodAdvert() error {
	return c.send([]byte{codec.CmdSendSelfAdvert, codec.SelfAdvertFlood})
}

// SendZeroHopAdvert broadcasts a direct, non-routed self advertisement.
func (c *Client) SendZeroHopAdvert() error {
	return c.send([]byte{codec.CmdSendSelfAdvert, codec.SelfAdvertZeroHop})
}

// GetSelfInfo returns the node's own identity captured during the handshake.
func (c *Client) GetSelfInfo() (*codec.SelfInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self == nil {
		return nil, ErrNotConnected
	}
	return c.self, nil
}

// GetContacts streams the full contact list from the device.
func (c *Client) GetContacts() ([]*models.NodeInfo, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	streamCodes := []byte{codec.RespContactsStart, codec.RespContact, codec.RespEndOfContacts}
	w := c.addWaiter(true, 128, streamCodes...)
	defer c.removeWaiter(w, streamCodes...)

	if err := c.send([]byte{codec.CmdGetContacts}); err != nil {
		return nil, err
	}

	var nodes []*models.NodeInfo
	deadline := time.After(contactsTimeout)
	for {
		select {
		case frame := <-w.ch:
			switch frame[0] {
			case codec.RespContactsStart:
				// carries the expected count; nothing to do with it here
			case codec.RespContact:
				contact, err := codec.ParseContact(frame[1:])
				if err != nil {
					c.log.Debug("skipping malformed contact frame", "error", err)
					continue
				}
				nodes = append(nodes, ContactToNode(contact))
			case codec.RespEndOfContacts:
				return nodes, nil
			}
		case <-deadline:
			return nodes, errors.New("timeout reading contact list")
		}
	}
}

// FindContactByPublicKeyPrefix fetches the contact list and returns the first
// entry whose key starts with the given prefix, or nil if none matches.
func (c *Client) FindContactByPublicKeyPrefix(prefix []byte) (*models.NodeInfo, error) {
	nodes, err := c.GetContacts()
	if err != nil {
		return nil, err
	}
	prefixHex := hex.EncodeToString(prefix)
	for _, n := range nodes {
		if strings.HasPrefix(n.PublicKeyHex(), prefixHex) {
			return n, nil
		}
	}
	return nil, nil
}

// GetChannel reads a single channel slot.
func (c *Client) GetChannel(index int) (*codec.ChannelInfo, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	frame, err := c.request([]byte{codec.CmdGetChannel, byte(index)}, codec.RespChannelInfo, codec.RespErr)
	if err != nil {
		return nil, err
	}
	if frame[0] == codec.RespErr {
		return nil, fmt.Errorf("%w: channel %d", ErrDeviceError, index)
	}
	return codec.ParseChannelInfo(frame)
}

// GetChannels reads every configured channel slot, skipping empty ones.
func (c *Client) GetChannels() ([]*codec.ChannelInfo, error) {
	var channels []*codec.ChannelInfo
	for i := 0; i < 8; i++ {
		info, err := c.GetChannel(i)
		if err != nil {
			continue
		}
		if info.Name == "" {
			continue
		}
		channels = append(channels, info)
	}
	return channels, nil
}

// SetChannel configures a channel slot with a name and 16-byte secret.
func (c *Client) SetChannel(index int, name string, secret []byte) error {
	payload, err := codec.BuildSetChannel(index, name, secret)
	if err != nil {
		return err
	}
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	return c.requestOK(payload)
}

// DeleteChannel clears a channel slot by writing an empty name and secret.
func (c *Client) DeleteChannel(index int) error {
	return c.SetChannel(index, "", make([]byte, codec.ChannelSecretSize))
}

// SendTextMessage sends a direct message to the peer with the given public
// key (or key prefix of at least 6 bytes).
func (c *Client) SendTextMessage(pubKey []byte, text string, kind uint8) error {
	payload, err := codec.BuildTextMessage(pubKey, text, kind, uint32(time.Now().Unix()))
	if err != nil {
		return err
	}
	return c.send(payload)
}

// SendChannelTextMessage broadcasts a message on a shared channel.
func (c *Client) SendChannelTextMessage(channelIdx int, text string) error {
	return c.send(codec.BuildChannelTextMessage(channelIdx, text, uint32(time.Now().Unix())))
}

// GetWaitingMessages drains the device's queued messages until it reports
// there are no more.
func (c *Client) GetWaitingMessages() ([]InboundMessage, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	var out []InboundMessage
	codes := []byte{codec.RespContactMsgRecv, codec.RespChannelMsgRecv, codec.RespNoMoreMessages}
	for {
		w := c.addWaiter(false, 1, codes...)
		err := c.send([]byte{codec.CmdSyncNextMessage})
		if err != nil {
			c.removeWaiter(w, codes...)
			return out, err
		}

		var frame []byte
		select {
		case frame = <-w.ch:
		case <-time.After(requestTimeout):
			c.removeWaiter(w, codes...)
			return out, errors.New("timeout waiting for next message")
		}
		c.removeWaiter(w, codes...)

		switch frame[0] {
		case codec.RespContactMsgRecv:
			m, err := codec.ParseContactMessage(frame)
			if err != nil {
				c.log.Debug("skipping malformed contact message", "error", err)
				continue
			}
			out = append(out, InboundMessage{Contact: m})
		case codec.RespChannelMsgRecv:
			m, err := codec.ParseChannelMessage(frame)
			if err != nil {
				c.log.Debug("skipping malformed channel message", "error", err)
				continue
			}
			out = append(out, InboundMessage{Channel: m})
		case codec.RespNoMoreMessages:
			return out, nil
		}
	}
}

// ContactToNode converts a wire contact entry into a peer profile. All
// optional profile fields are populated: the contact list always carries the
// full record.
func ContactToNode(c *codec.Contact) *models.NodeInfo {
	nodeType := c.Type
	lastAdvert := c.LastAdvert
	lastMod := c.LastMod
	lat := c.AdvLat
	lon := c.AdvLon
	n := &models.NodeInfo{
		PublicKey:  append([]byte(nil), c.PublicKey[:]...),
		Name:       c.Name(),
		NodeType:   &nodeType,
		LastAdvert: &lastAdvert,
		LastMod:    &lastMod,
	}
	if lat != 0 || lon != 0 {
		n.Latitude = &lat
		n.Longitude = &lon
	}
	return n
}
