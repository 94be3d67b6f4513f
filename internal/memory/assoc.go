package memory

import (
	"crypto/sha1"
	"encoding/hex"
	"context"
	"time"
)

// AssociationStore persists directed memory-to-memory edges (spec §3.2
// "Associations are directed", §9 "represent by id references; resolution
// is by lookup"). It is a thin wrapper over Store's generic row CRUD
// targeting the memory_associations table, not a new adapter contract.
type AssociationStore struct {
	store Store
	table string
}

func NewAssociationStore(store Store) *AssociationStore {
	return &AssociationStore{store: store, table: "memory_associations"}
}

// edgeID derives a stable id from (from, to, type) so that re-discovering
// the same edge is an idempotent upsert rather than a duplicate row —
// achieving factual_engine.py's "dedup check before insert" without a
// round-trip select.
func edgeID(fromID, toID, typ string) string {
	sum := sha1.Sum([]byte(fromID + "\x00" + toID + "\x00" + typ))
	return hex.EncodeToString(sum[:])
}

// LinkIfAbsent inserts (or idempotently re-asserts) a directed edge.
func (a *AssociationStore) LinkIfAbsent(ctx context.Context, fromID, toID, typ string, strength float64) {
	row := Row{
		"id": edgeID(fromID, toID, typ), "from_id": fromID, "to_id": toID,
		"type": typ, "strength": strength, "created_at": time.Now(),
	}
	_, _ = a.store.Upsert(ctx, a.table, row, []string{"id"})
}
