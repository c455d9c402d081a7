package models

import (
	"testing"
)

func TestCloneDoesNotAlias(t *testing.T) {
	lastMod := uint32(10)
	lat := int32(1_000_000)
	n := &NodeInfo{
		PublicKey: []byte{1, 2, 3},
		Name:      "Rover",
		LastMod:   &lastMod,
		Latitude:  &lat,
	}
	c := n.Clone()
	*c.LastMod = 99
	c.PublicKey[0] = 0xff

	if *n.LastMod != 10 {
		t.Error("clone aliases lastMod pointer")
	}
	if n.PublicKey[0] != 1 {
		t.Error("clone aliases public key slice")
	}
}

func TestAdvertRecordRoundTrip(t *testing.T) {
	nodeType := uint8(2)
	lastAdvert := uint32(1700000000)
	lat := int32(-13_404_954)
	n := &NodeInfo{
		PublicKey:  []byte{0xab, 0xcd},
		Name:       "Beacon",
		NodeType:   &nodeType,
		LastAdvert: &lastAdvert,
		Latitude:   &lat,
	}

	got := NodeFromAdvertRecord(AdvertRecordFromNode(n))
	if got.PublicKeyHex() != "abcd" || got.Name != "Beacon" {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.NodeType == nil || *got.NodeType != 2 {
		t.Errorf("node type = %v", got.NodeType)
	}
	if got.LastAdvert == nil || *got.LastAdvert != lastAdvert {
		t.Errorf("last advert = %v", got.LastAdvert)
	}
	if got.Latitude == nil || *got.Latitude != lat {
		t.Errorf("latitude = %v", got.Latitude)
	}
	if got.LastMod != nil {
		t.Error("absent lastMod must stay absent")
	}
}
