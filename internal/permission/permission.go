// Package permission implements per-principal, per-feed-type read access
// based on bitmasks over the enumerable feed parameters.
//
// A Record is a list of uint64 masks, one per enumerable position. Access to
// a feed requires a record for the feed type and, at every enumerable
// position, the bit for the parameter value to be set. Anything not granted
// is denied.
package permission

import (
	"sort"
	"sync"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
)

var log = logging.Component("permission")

// MaxValue is the largest enumerable value a mask can authorize.
const MaxValue = 63

// Principal identifies a consumer of feeds.
type Principal string

// Record holds one bitmask per enumerable position.
type Record []uint64

// Grant is a single (principal, feed type) record.
type Grant struct {
	Principal Principal
	Type      feed.Type
	Masks     Record
}

// Manager stores permission records.
type Manager struct {
	mu      sync.RWMutex
	records map[Principal]map[feed.Type]Record
}

// NewManager creates an empty manager where every check is denied.
func NewManager() *Manager {
	return &Manager{records: make(map[Principal]map[feed.Type]Record)}
}

// Grant replaces the record for (principal, t) with a copy of masks.
func (m *Manager) Grant(principal Principal, t feed.Type, masks []uint64) {
	rec := append(Record(nil), masks...)

	m.mu.Lock()
	byType, ok := m.records[principal]
	if !ok {
		byType = make(map[feed.Type]Record)
		m.records[principal] = byType
	}
	byType[t] = rec
	m.mu.Unlock()

	log.Debug("permission granted", "principal", principal, "feed_type", t, "positions", len(rec))
}

// Revoke removes the record for (principal, t). Revoking an absent record is
// a no-op.
func (m *Manager) Revoke(principal Principal, t feed.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType, ok := m.records[principal]
	if !ok {
		return
	}
	delete(byType, t)
	if len(byType) == 0 {
		delete(m.records, principal)
	}
}

// CheckAccess reports whether principal may read f.
func (m *Manager) CheckAccess(principal Principal, f feed.Feed) bool {
	m.mu.RLock()
	rec, ok := m.records[principal][f.Type]
	m.mu.RUnlock()

	if !ok {
		return false
	}
	return rec.Allows(f.Params)
}

// Authorize is CheckAccess returning ErrPermissionDenied on failure.
func (m *Manager) Authorize(principal Principal, f feed.Feed) error {
	if m.CheckAccess(principal, f) {
		return nil
	}
	return errors.Wrapf(errors.ErrPermissionDenied, "%s may not read %s", principal, f)
}

// Grants returns the records of principal sorted by feed type.
func (m *Manager) Grants(principal Principal) []Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := m.records[principal]
	out := make([]Grant, 0, len(byType))
	for t, rec := range byType {
		out = append(out, Grant{
			Principal: principal,
			Type:      t,
			Masks:     append(Record(nil), rec...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Principals returns all principals with at least one record, sorted.
func (m *Manager) Principals() []Principal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Principal, 0, len(m.records))
	for p := range m.records {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allows reports whether the record covers every enumerable position of
// params. A feed with more positions than masks is denied.
func (r Record) Allows(params feed.Parameters) bool {
	if params.Len() > len(r) {
		return false
	}
	for i := 0; i < params.Len(); i++ {
		if !IsAuthorizedForParameter(r[i], params.At(i)) {
			return false
		}
	}
	return true
}

// IsAuthorizedForParameter reports whether bit value of mask is set.
// Values above MaxValue are never authorized.
func IsAuthorizedForParameter(mask uint64, value uint8) bool {
	if value > MaxValue {
		return false
	}
	return mask&(uint64(1)<<value) != 0
}

// MaskOf returns a mask authorizing exactly the given values. Values above
// MaxValue are ignored.
func MaskOf(values ...uint8) uint64 {
	var mask uint64
	for _, v := range values {
		if v <= MaxValue {
			mask |= uint64(1) << v
		}
	}
	return mask
}
