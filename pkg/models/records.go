package models

import (
	"time"
)

// AdvertRecord is the persisted form of a peer's latest merged advert.
// One row per public key, latest wins.
type AdvertRecord struct {
	PubKey     []byte     `db:"pub_key"`
	NodeType   *int16     `db:"node_type"`
	Name       string     `db:"name"`
	LastAdvert *int64     `db:"last_advert"`
	LastMod    *int64     `db:"last_mod"`
	Latitude   *int32     `db:"latitude"`
	Longitude  *int32     `db:"longitude"`
	UpdatedAt  *time.Time `db:"updated_at"`
}

// MessageRecord is an append-only row for an inbound contact or channel
// message. PubKey and Name are nil when the sender could not be resolved.
type MessageRecord struct {
	ID          int64      `db:"id"`
	PubKey      []byte     `db:"pub_key"`
	Name        *string    `db:"name"`
	ChannelIdx  *int16     `db:"channel_idx"`
	ChannelName *string    `db:"channel_name"`
	Text        string     `db:"text"`
	SenderTime  *time.Time `db:"sender_time"`
	CreatedAt   *time.Time `db:"created_at"`
}

// AdvertRecordFromNode converts a merged profile into its persisted form.
func AdvertRecordFromNode(n *NodeInfo) *AdvertRecord {
	rec := &AdvertRecord{
		PubKey: append([]byte(nil), n.PublicKey...),
		Name:   n.Name,
	}
	if n.NodeType != nil {
		v := int16(*n.NodeType)
		rec.NodeType = &v
	}
	if n.LastAdvert != nil {
		v := int64(*n.LastAdvert)
		rec.LastAdvert = &v
	}
	if n.LastMod != nil {
		v := int64(*n.LastMod)
		rec.LastMod = &v
	}
	rec.Latitude = n.Latitude
	rec.Longitude = n.Longitude
	return rec
}

// NodeFromAdvertRecord converts a persisted advert row back into a profile.
func NodeFromAdvertRecord(rec *AdvertRecord) *NodeInfo {
	n := &NodeInfo{
		PublicKey: append([]byte(nil), rec.PubKey...),
		Name:      rec.Name,
	}
	if rec.NodeType != nil {
		v := uint8(*rec.NodeType)
		n.NodeType = &v
	}
	if rec.LastAdvert != nil {
		v := uint32(*rec.LastAdvert)
		n.LastAdvert = &v
	}
	if rec.LastMod != nil {
		v := uint32(*rec.LastMod)
		n.LastMod = &v
	}
	n.Latitude = rec.Latitude
	n.Longitude = rec.Longitude
	return n
}
