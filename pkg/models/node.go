package models

import (
	"encoding/hex"
)

// NodeInfo is the in-memory profile of a mesh peer, keyed by its public key.
// Optional fields are pointers: an advert may omit any of them, and the
// merged profile keeps whatever was last known.
type NodeInfo struct {
	PublicKey  []byte
	NodeType   *uint8
	Name       string
	LastAdvert *uint32
	LastMod    *uint32
	Latitude   *int32 // micro-degrees (value * 1e-6 = decimal degrees)
	Longitude  *int32
}

// PublicKeyHex returns the canonical lowercase hex form of the public key.
func (n *NodeInfo) PublicKeyHex() string {
	return hex.EncodeToString(n.PublicKey)
}

// HasLocation returns true if the node has location information.
func (n *NodeInfo) HasLocation() bool {
	return n.Latitude != nil && n.Longitude != nil
}

// Clone returns a shallow copy with fresh pointers for the optional fields,
// so callers can mutate the copy without aliasing directory state.
func (n *NodeInfo) Clone() *NodeInfo {
	c := &NodeInfo{
		PublicKey: append([]byte(nil), n.PublicKey...),
		Name:      n.Name,
	}
	if n.NodeType != nil {
		v := *n.NodeType
		c.NodeType = &v
	}
	if n.LastAdvert != nil {
		v := *n.LastAdvert
		c.LastAdvert = &v
	}
	if n.LastMod != nil {
		v := *n.LastMod
		c.LastMod = &v
	}
	if n.Latitude != nil {
		v := *n.Latitude
		c.Latitude = &v
	}
	if n.Longitude != nil {
		v := *n.Longitude
		c.Longitude = &v
	}
	return c
}
