package gateway

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/wombatinua/meshcore-ai/pkg/directory"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
)

// channelTextRe splits "name: text" on the first colon. The prefix is
// non-greedy, so a message containing more colons keeps them in the body.
var channelTextRe = regexp.MustCompile(`^(.*?): ?(.*)$`)

// SplitChannelText separates the conventional "<name>: " sender prefix from
// a channel message. With no colon in the text, the name is empty and the
// text is returned unchanged.
func SplitChannelText(raw string) (name, text string) {
	if m := channelTextRe.FindStringSubmatch(raw); m != nil {
		return m[1], m[2]
	}
	return "", raw
}

// FormatCoordinate renders a micro-degree coordinate as decimal degrees with
// exactly six fractional digits. A nil coordinate renders as the empty string.
func FormatCoordinate(v *int32) string {
	if v == nil {
		return ""
	}
	n := int64(*v)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%06d", sign, n/1_000_000, n%1_000_000)
}

// FormatTimestamp renders epoch seconds in local time. Zero is a valid epoch
// and renders normally; only a nil timestamp renders as the empty string.
func FormatTimestamp(epoch *uint32) string {
	if epoch == nil {
		return ""
	}
	return time.Unix(int64(*epoch), 0).Format("02.01.2006 15:04:05")
}

// AdvertEvent is a fully resolved advert ready for persistence and display.
type AdvertEvent struct {
	Node           *models.NodeInfo
	TypeName       string
	LastAdvertText string
	LastModText    string
	LatitudeText   string
	LongitudeText  string
}

// Normalizer merges partial advert payloads against the peer directory, with
// a device-backed fallback when the directory misses.
type Normalizer struct {
	dir    *directory.Directory
	device DeviceLink
	log    *slog.Logger
}

func NewNormalizer(dir *directory.Directory, device DeviceLink, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{dir: dir, device: device, log: log}
}

// NormalizeAdvert completes a partial advert: each absent field falls back to
// the cached profile for the same identity. The cache is consulted first; on
// a miss the device's contact list is tried, and a device failure degrades to
// no profile rather than an error.
func (n *Normalizer) NormalizeAdvert(partial *models.NodeInfo) *AdvertEvent {
	profile := n.dir.LookupByKey(partial.PublicKey)
	if profile == nil && n.device != nil {
		found, err := n.device.FindContactByPublicKeyPrefix(partial.PublicKey)
		if err != nil {
			n.log.Debug("device lookup for advert peer failed", "error", err)
		} else {
			profile = found
		}
	}

	merged := partial.Clone()
	if profile != nil {
		if merged.Name == "" {
			merged.Name = profile.Name
		}
		if merged.NodeType == nil {
			merged.NodeType = profile.NodeType
		}
		if merged.LastAdvert == nil {
			merged.LastAdvert = profile.LastAdvert
		}
		if merged.LastMod == nil {
			merged.LastMod = profile.LastMod
		}
		if merged.Latitude == nil {
			merged.Latitude = profile.Latitude
		}
		if merged.Longitude == nil {
			merged.Longitude = profile.Longitude
		}
	}

	ev := &AdvertEvent{
		Node:           merged,
		LastAdvertText: FormatTimestamp(merged.LastAdvert),
		LastModText:    FormatTimestamp(merged.LastMod),
		LatitudeText:   FormatCoordinate(merged.Latitude),
		LongitudeText:  FormatCoordinate(merged.Longitude),
	}
	if merged.NodeType != nil {
		ev.TypeName = codec.NodeTypeName(*merged.NodeType)
	}
	return ev
}
