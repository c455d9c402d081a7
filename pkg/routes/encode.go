package routes

import (
	"encoding/hex"

	"github.com/wombatinua/meshcore-ai/pkg/gateway"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
)

func nodesToJSON(nodes []*models.NodeInfo) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		entry := map[string]any{
			"pub_key":     n.PublicKeyHex(),
			"name":        n.Name,
			"last_advert": gateway.FormatTimestamp(n.LastAdvert),
			"last_mod":    gateway.FormatTimestamp(n.LastMod),
			"latitude":    gateway.FormatCoordinate(n.Latitude),
			"longitude":   gateway.FormatCoordinate(n.Longitude),
		}
		if n.NodeType != nil {
			entry["type"] = codec.NodeTypeName(*n.NodeType)
		}
		out = append(out, entry)
	}
	return out
}

func channelToJSON(ch *codec.ChannelInfo) map[string]any {
	entry := map[string]any{
		"index": ch.Index,
		"name":  ch.Name,
	}
	if ch.Secret != nil {
		entry["secret"] = hex.EncodeToString(ch.Secret)
	}
	return entry
}

func advertToJSON(rec *models.AdvertRecord) map[string]any {
	node := models.NodeFromAdvertRecord(rec)
	entry := map[string]any{
		"pub_key":     node.PublicKeyHex(),
		"name":        node.Name,
		"last_advert": gateway.FormatTimestamp(node.LastAdvert),
		"last_mod":    gateway.FormatTimestamp(node.LastMod),
		"latitude":    gateway.FormatCoordinate(node.Latitude),
		"longitude":   gateway.FormatCoordinate(node.Longitude),
	}
	if node.NodeType != nil {
		entry["type"] = codec.NodeTypeName(*node.NodeType)
	}
	if rec.UpdatedAt != nil {
		entry["updated_at"] = rec.UpdatedAt.Format("02.01.2006 15:04:05")
	}
	return entry
}

func messageToJSON(rec *models.MessageRecord) map[string]any {
	entry := map[string]any{
		"id":   rec.ID,
		"text": rec.Text,
	}
	if len(rec.PubKey) > 0 {
		entry["pub_key"] = hex.EncodeToString(rec.PubKey)
	}
	if rec.Name != nil {
		entry["name"] = *rec.Name
	}
	if rec.ChannelIdx != nil {
		entry["channel"] = *rec.ChannelIdx
	}
	if rec.ChannelName != nil {
		entry["channel_name"] = *rec.ChannelName
	}
	if rec.SenderTime != nil {
		entry["sender_time"] = rec.SenderTime.Format("02.01.2006 15:04:05")
	}
	if rec.CreatedAt != nil {
		entry["created_at"] = rec.CreatedAt.Format("02.01.2006 15:04:05")
	}
	return entry
}
