// Package codec implements the MeshCore companion serial-frame protocol:
// command/response codes, push frames, and payload parsing.
package codec

// Serial frame markers. Every frame is marker + uint16 LE length + payload.
const (
	FrameMarkerOut = 0x3C // host -> device
	FrameMarkerIn  = 0x3E // device -> host
	MaxFrameSize   = 4096
)

// Commands sent to the device.
const (
	CmdAppStart        = 0x01
	CmdSendTextMessage = 0x02
	CmdSendChannelText = 0x03
	CmdGetContacts     = 0x04
	CmdGetDeviceTime   = 0x05
	CmdSetDeviceTime   = 0x06
	CmdSendSelfAdvert  = 0x07
	CmdSetAdvertName   = 0x08
	CmdSyncNextMessage = 0x0A
	CmdReboot          = 0x13
	CmdDeviceQuery     = 0x16
	CmdGetChannel      = 0x1F
	CmdSetChannel      = 0x20
)

// Response codes from the device.
const (
	RespOK             = 0x00
	RespErr            = 0x01
	RespContactsStart  = 0x02
	RespContact        = 0x03
	RespEndOfContacts  = 0x04
	RespSelfInfo       = 0x05
	RespSent           = 0x06
	RespContactMsgRecv = 0x07
	RespChannelMsgRecv = 0x08
	RespCurrTime       = 0x09
	RespNoMoreMessages = 0x0A
	RespDeviceInfo     = 0x0D
	RespChannelInfo    = 0x12
)

// Unsolicited push frames (0x80 and up).
const (
	PushAdvert        = 0x80
	PushPathUpdated   = 0x81
	PushSendConfirmed = 0x82
	PushMsgWaiting    = 0x83
	PushRawData       = 0x84
	PushLoginSuccess  = 0x85
	PushStatusResp    = 0x87
	PushLogRxData     = 0x88
	PushNewAdvert     = 0x8A
	PushTelemetry     = 0x8B
)

// Self-advert kinds for CmdSendSelfAdvert.
const (
	SelfAdvertZeroHop = 0x00
	SelfAdvertFlood   = 0x01
)
