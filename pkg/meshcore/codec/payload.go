package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Advert payload sizes
	AdvertPubKeySize    = 32
	AdvertTimestampSize = 4
	AdvertSignatureSize = 64
	AdvertMinSize       = AdvertPubKeySize + AdvertTimestampSize + AdvertSignatureSize // 100 bytes

	// AppData flags - node types (lower 4 bits)
	NodeTypeChat     = 0x01
	NodeTypeRepeater = 0x02
	NodeTypeRoom     = 0x03
	NodeTypeSensor   = 0x04

	// AppData flags - presence flags (upper 4 bits)
	FlagHasLocation = 0x10
	FlagHasFeature1 = 0x20
	FlagHasFeature2 = 0x40
	FlagHasName     = 0x80

	// Channel info sizes
	ChannelNameSize   = 32
	ChannelSecretSize = 16
)

var (
	ErrAdvertTooShort  = errors.New("advert payload too short")
	ErrAppDataTooShort = errors.New("appdata too short")
	ErrFrameTooShort   = errors.New("frame too short")
)

// AdvertPayload represents a parsed node advertisement.
type AdvertPayload struct {
	PubKey    [32]byte
	Timestamp uint32
	Signature [64]byte
	AppData   *AdvertAppData
}

// AdvertAppData represents the optional application data in an advertisement.
// Lat/Lon are kept as raw micro-degree integers; rendering to decimal degrees
// happens at display time.
type AdvertAppData struct {
	Flags    uint8
	NodeType uint8  // Lower 4 bits of flags: chat, repeater, room, sensor
	Name     string // Node name (if FlagHasName set)
	Lat      *int32 // Latitude in micro-degrees (if FlagHasLocation set)
	Lon      *int32 // Longitude in micro-degrees (if FlagHasLocation set)
	Feature1 *uint16
	Feature2 *uint16
}

// ParseAdvertPayload parses an ADVERT payload into its components.
func ParseAdvertPayload(data []byte) (*AdvertPayload, error) {
	if len(data) < AdvertMinSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d",
			ErrAdvertTooShort, AdvertMinSize, len(data))
	}

	advert := &AdvertPayload{}

	copy(advert.PubKey[:], data[0:32])
	advert.Timestamp = binary.LittleEndian.Uint32(data[32:36])
	copy(advert.Signature[:], data[36:100])

	if len(data) > AdvertMinSize {
		appData, err := ParseAdvertAppData(data[AdvertMinSize:])
		if err != nil {
			return nil, fmt.Errorf("failed to parse appdata: %w", err)
		}
		advert.AppData = appData
	}

	return advert, nil
}

// ParseAdvertAppData parses the optional application data from an advertisement.
func ParseAdvertAppData(data []byte) (*AdvertAppData, error) {
	if len(data) < 1 {
		return nil, ErrAppDataTooShort
	}

	appData := &AdvertAppData{
		Flags:    data[0],
		NodeType: data[0] & 0x0F,
	}

	offset := 1

	if appData.Flags&FlagHasLocation != 0 {
		if len(data) < offset+8 {
			return nil, fmt.Errorf("%w: expected location data", ErrAppDataTooShort)
		}
		lat := int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
		lon := int32(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		appData.Lat = &lat
		appData.Lon = &lon
		offset += 8
	}

	if appData.Flags&FlagHasFeature1 != 0 {
		if len(data) < offset+2 {
			return nil, fmt.Errorf("%w: expected feature1 data", ErrAppDataTooShort)
		}
		f1 := binary.LittleEndian.Uint16(data[offset : offset+2])
		appData.Feature1 = &f1
		offset += 2
	}

	if appData.Flags&FlagHasFeature2 != 0 {
		if len(data) < offset+2 {
			return nil, fmt.Errorf("%w: expected feature2 data", ErrAppDataTooShort)
		}
		f2 := binary.LittleEndian.Uint16(data[offset : offset+2])
		appData.Feature2 = &f2
		offset += 2
	}

	if appData.Flags&FlagHasName != 0 {
		if offset < len(data) {
			appData.Name = string(data[offset:])
		}
	}

	return appData, nil
}

// NodeTypeName returns a human-readable name for the node type.
func NodeTypeName(t uint8) string {
	switch t {
	case NodeTypeChat:
		return "chat"
	case NodeTypeRepeater:
		return "repeater"
	case NodeTypeRoom:
		return "room"
	case NodeTypeSensor:
		return "sensor"
	default:
		if t == 0 {
			return "unknown"
		}
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// HasLocation returns true if the appdata includes location information.
func (a *AdvertAppData) HasLocation() bool {
	return a.Lat != nil && a.Lon != nil
}

// GetNodeTypeName returns the human-readable node type name.
func (a *AdvertAppData) GetNodeTypeName() string {
	return NodeTypeName(a.NodeType)
}

// Contact is one entry of the device's contact list as sent in a
// RespContact frame. The wire layout is fixed-size little endian.
type Contact struct {
	PublicKey  [32]byte
	Type       uint8
	Flags      uint8
	OutPathLen int8
	OutPath    [64]byte
	AdvName    [32]byte
	LastAdvert uint32
	AdvLat     int32
	AdvLon     int32
	LastMod    uint32
}

// Name returns the advertised display name with the zero padding stripped.
func (c *Contact) Name() string {
	return string(bytes.TrimRight(c.AdvName[:], "\x00"))
}

// ParseContact parses the body of a RespContact frame (code byte excluded).
func ParseContact(data []byte) (*Contact, error) {
	var c Contact
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &c); err != nil {
		return nil, fmt.Errorf("parse contact: %w", err)
	}
	return &c, nil
}

// SelfInfo is the device's own identity as reported in a RespSelfInfo frame.
type SelfInfo struct {
	PublicKey [32]byte
	AdvLat    int32
	AdvLon    int32
	Name      string
}

// ParseSelfInfo parses a RespSelfInfo frame (code byte included).
//
// Layout: code(1) txPower(1) maxTxPower(1) pubKey(32) advLat(4) advLon(4)
// reserved(3) manualAddContacts(1) radioFreq(4) radioBw(4) radioSf(1)
// radioCr(1) name(C string).
func ParseSelfInfo(data []byte) (*SelfInfo, error) {
	if len(data) < 43 {
		return nil, fmt.Errorf("%w: self info needs 43 bytes, got %d", ErrFrameTooShort, len(data))
	}
	info := &SelfInfo{}
	copy(info.PublicKey[:], data[3:35])
	info.AdvLat = int32(binary.LittleEndian.Uint32(data[35:39]))
	info.AdvLon = int32(binary.LittleEndian.Uint32(data[39:43]))
	if len(data) > 57 {
		nameBytes := data[57:]
		if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
			nameBytes = nameBytes[:i]
		}
		info.Name = string(nameBytes)
	}
	return info, nil
}

// ChannelInfo is a channel slot as reported in a RespChannelInfo frame.
type ChannelInfo struct {
	Index  int
	Name   string
	Secret []byte // nil if the firmware did not include it
}

// ParseChannelInfo parses a RespChannelInfo frame (code byte included).
func ParseChannelInfo(data []byte) (*ChannelInfo, error) {
	if len(data) < 2+ChannelNameSize {
		return nil, fmt.Errorf("%w: channel info needs %d bytes, got %d",
			ErrFrameTooShort, 2+ChannelNameSize, len(data))
	}
	info := &ChannelInfo{Index: int(data[1])}
	nameBytes := data[2 : 2+ChannelNameSize]
	if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
		nameBytes = nameBytes[:i]
	}
	info.Name = string(nameBytes)
	if len(data) >= 2+ChannelNameSize+ChannelSecretSize {
		info.Secret = append([]byte(nil), data[2+ChannelNameSize:2+ChannelNameSize+ChannelSecretSize]...)
	}
	return info, nil
}

// ContactMessage is an inbound direct message as sent in a RespContactMsgRecv
// frame. The sender is identified only by a 6-byte public key prefix.
type ContactMessage struct {
	PubKeyPrefix [6]byte
	PathLen      uint8
	TxtType      uint8
	SenderTime   uint32
	Text         string
}

// ParseContactMessage parses a RespContactMsgRecv frame (code byte included).
func ParseContactMessage(data []byte) (*ContactMessage, error) {
	if len(data) < 13 {
		return nil, fmt.Errorf("%w: contact message needs 13 bytes, got %d", ErrFrameTooShort, len(data))
	}
	m := &ContactMessage{}
	copy(m.PubKeyPrefix[:], data[1:7])
	m.PathLen = data[7]
	m.TxtType = data[8]
	m.SenderTime = binary.LittleEndian.Uint32(data[9:13])
	m.Text = string(data[13:])
	return m, nil
}

// ChannelMessage is an inbound shared-channel message as sent in a
// RespChannelMsgRecv frame.
type ChannelMessage struct {
	ChannelIdx int8
	PathLen    uint8
	TxtType    uint8
	SenderTime uint32
	Text       string
}

// ParseChannelMessage parses a RespChannelMsgRecv frame (code byte included).
func ParseChannelMessage(data []byte) (*ChannelMessage, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: channel message needs 8 bytes, got %d", ErrFrameTooShort, len(data))
	}
	m := &ChannelMessage{}
	m.ChannelIdx = int8(data[1])
	m.PathLen = data[2]
	m.TxtType = data[3]
	m.SenderTime = binary.LittleEndian.Uint32(data[4:8])
	m.Text = string(data[8:])
	return m, nil
}

// BuildTextMessage builds a CmdSendTextMessage payload for a direct message.
// Only the first 6 bytes of the destination public key go on the wire.
func BuildTextMessage(pubKey []byte, text string, txtType uint8, timestamp uint32) ([]byte, error) {
	if len(pubKey) < 6 {
		return nil, fmt.Errorf("destination key too short: %d bytes", len(pubKey))
	}
	var buf bytes.Buffer
	buf.WriteByte(CmdSendTextMessage)
	buf.WriteByte(txtType)
	buf.WriteByte(0) // attempt
	binary.Write(&buf, binary.LittleEndian, timestamp)
	buf.Write(pubKey[:6])
	buf.WriteString(text)
	return buf.Bytes(), nil
}

// BuildChannelTextMessage builds a CmdSendChannelText payload.
func BuildChannelTextMessage(channelIdx int, text string, timestamp uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(CmdSendChannelText)
	buf.WriteByte(0) // txtType = plain
	buf.WriteByte(byte(channelIdx))
	binary.Write(&buf, binary.LittleEndian, timestamp)
	buf.WriteString(text)
	return buf.Bytes()
}

// BuildSetChannel builds a CmdSetChannel payload. The name is zero-padded to
// the fixed slot width and the secret must be exactly ChannelSecretSize bytes.
func BuildSetChannel(channelIdx int, name string, secret []byte) ([]byte, error) {
	if len(secret) != ChannelSecretSize {
		return nil, fmt.Errorf("channel secret must be %d bytes, got %d", ChannelSecretSize, len(secret))
	}
	var buf bytes.Buffer
	buf.WriteByte(CmdSetChannel)
	buf.WriteByte(byte(channelIdx))
	nameBytes := make([]byte, ChannelNameSize)
	copy(nameBytes, name)
	buf.Write(nameBytes)
	buf.Write(secret)
	return buf.Bytes(), nil
}

// BuildAppStart builds the handshake payload sent right after connecting.
func BuildAppStart(appName string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(CmdAppStart)
	buf.WriteByte(0x01)                                   // app version
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}) // reserved
	buf.WriteString(appName)
	return buf.Bytes()
}

// BuildSetDeviceTime builds a CmdSetDeviceTime payload for the given epoch.
func BuildSetDeviceTime(epoch uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(CmdSetDeviceTime)
	binary.Write(&buf, binary.LittleEndian, epoch)
	return buf.Bytes()
}
