// Package directory maintains the in-memory peer directory: every node heard
// from, keyed by public key, preserving the order each peer was first seen.
package directory

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"

	"github.com/wombatinua/meshcore-ai/pkg/models"
)

// FetchFunc refreshes the directory from an authoritative source, typically
// the device's contact list.
type FetchFunc func() ([]*models.NodeInfo, error)

// Directory is a concurrency-safe peer registry. Entries keep their original
// insertion position across updates; later updates overwrite fields in place.
type Directory struct {
	mu     sync.RWMutex
	byKey  map[string]*models.NodeInfo
	byName map[string]*models.NodeInfo
	order  []string
	log    *slog.Logger
}

func New(log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		byKey:  make(map[string]*models.NodeInfo),
		byName: make(map[string]*models.NodeInfo),
		log:    log,
	}
}

// Upsert inserts or updates a peer profile. A node with an empty public key
// is ignored. Re-inserting an existing key keeps its position in the listing
// order; the name index always points at the most recent holder of a name.
func (d *Directory) Upsert(node *models.NodeInfo) {
	if node == nil || len(node.PublicKey) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upsertLocked(node)
}

// BulkUpsert applies a batch of profiles under a single lock.
func (d *Directory) BulkUpsert(nodes []*models.NodeInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, node := range nodes {
		if node == nil || len(node.PublicKey) == 0 {
			continue
		}
		d.upsertLocked(node)
	}
}

func (d *Directory) upsertLocked(node *models.NodeInfo) {
	key := node.PublicKeyHex()
	entry := node.Clone()
	if prev, ok := d.byKey[key]; ok {
		if prev.Name != "" && prev.Name != entry.Name {
			// Drop the stale name entry only if this peer still owns it;
			// another peer may have taken the name since.
			if cur, ok := d.byName[prev.Name]; ok && bytes.Equal(cur.PublicKey, prev.PublicKey) {
				delete(d.byName, prev.Name)
			}
		}
	} else {
		d.order = append(d.order, key)
	}
	d.byKey[key] = entry
	if entry.Name != "" {
		d.byName[entry.Name] = entry
	}
}

// HasAny reports whether the directory holds at least one peer.
func (d *Directory) HasAny() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order) > 0
}

// ListAll returns every known peer in first-seen order.
func (d *Directory) ListAll() []*models.NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.NodeInfo, 0, len(d.order))
	for _, key := range d.order {
		out = append(out, d.byKey[key].Clone())
	}
	return out
}

// LookupByKey returns the peer with the exact public key, or nil.
func (d *Directory) LookupByKey(pubKey []byte) *models.NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if entry, ok := d.byKey[hex.EncodeToString(pubKey)]; ok {
		return entry.Clone()
	}
	return nil
}

// LookupByPrefix returns the first peer, in first-seen order, whose public
// key starts with the given prefix.
func (d *Directory) LookupByPrefix(prefix []byte) *models.NodeInfo {
	prefixHex := hex.EncodeToString(prefix)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, key := range d.order {
		if strings.HasPrefix(key, prefixHex) {
			return d.byKey[key].Clone()
		}
	}
	return nil
}

// LookupByName returns the peer currently indexed under the given display
// name, or nil.
func (d *Directory) LookupByName(name string) *models.NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if entry, ok := d.byName[name]; ok {
		return entry.Clone()
	}
	return nil
}

// ResolveByName looks the name up locally and, on a miss, refreshes the
// directory once via fetch before retrying. A fetch failure is returned as
// the error; a clean miss after the refresh returns (nil, nil).
func (d *Directory) ResolveByName(name string, fetch FetchFunc) (*models.NodeInfo, error) {
	if node := d.LookupByName(name); node != nil {
		return node, nil
	}
	if fetch == nil {
		return nil, nil
	}
	nodes, err := fetch()
	if err != nil {
		return nil, err
	}
	d.BulkUpsert(nodes)
	d.log.Debug("refreshed peer directory for name lookup", "name", name, "peers", len(nodes))
	return d.LookupByName(name), nil
}
