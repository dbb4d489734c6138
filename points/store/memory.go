// Package store provides in-memory implementations of the points
// persistence and collaborator interfaces, for tests and development.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/points"
)

// =============================================================================
// MEMORY LEDGER - records kept as a slice so duplicate rows can exist,
// exactly like a table without a unique index. MergeDuplicates heals them.
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records []points.LedgerRecord
	seq     int64

	users       map[points.UserID]points.User
	userOrder   []points.UserID
	bonusMarker map[points.UserID]bool

	orders     map[points.OrderID]*memOrder
	orderOrder []points.OrderID
}

type memOrder struct {
	order      points.Order
	status     string
	categories []string
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[points.UserID]points.User),
		bonusMarker: make(map[points.UserID]bool),
		orders:      make(map[points.OrderID]*memOrder),
	}
}

// earliestIndex returns the index of the earliest-created row for a user,
// or -1 when none exists. Creation order is insertion order.
func (m *Memory) earliestIndex(userID points.UserID) int {
	for i := range m.records {
		if m.records[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (m *Memory) Get(_ context.Context, userID points.UserID) (points.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.earliestIndex(userID); i >= 0 {
		return m.records[i], nil
	}
	return points.ZeroRecord(userID), nil
}

func (m *Memory) UpsertAdd(_ context.Context, userID points.UserID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.earliestIndex(userID); i >= 0 {
		m.records[i].Points += delta
		return nil
	}
	m.seq++
	m.records = append(m.records, points.LedgerRecord{
		UserID:    userID,
		Points:    delta,
		Mode:      points.ModeComputed,
		Standing:  points.StandingActive,
		CreatedAt: time.Unix(m.seq, 0),
	})
	return nil
}

func (m *Memory) SetAbsolute(_ context.Context, userID points.UserID, newPoints int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.earliestIndex(userID)
	if i < 0 {
		return 0, points.ErrRecordNotFound
	}
	prev := m.records[i].Points
	m.records[i].Points = newPoints
	m.records[i].Mode = points.ModePinned
	return prev, nil
}

func (m *Memory) SetStanding(_ context.Context, userID points.UserID, standing points.Standing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.earliestIndex(userID); i >= 0 {
		m.records[i].Standing = standing
		return nil
	}
	m.seq++
	rec := points.ZeroRecord(userID)
	rec.Standing = standing
	rec.CreatedAt = time.Unix(m.seq, 0)
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) Redeem(_ context.Context, userID points.UserID, n int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.earliestIndex(userID)
	if i < 0 || m.records[i].Points < n {
		return false, nil
	}
	m.records[i].Points -= n
	m.records[i].RedeemedPoints += n
	return true, nil
}

func (m *Memory) RescaleAll(_ context.Context, factor decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		m.records[i].Points = points.RescalePoints(m.records[i].Points, factor)
	}
	return int64(len(m.records)), nil
}

func (m *Memory) MergeDuplicates(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var merged []points.LedgerRecord
	index := make(map[points.UserID]int)
	var removed int64

	for _, r := range m.records {
		i, seen := index[r.UserID]
		if !seen {
			index[r.UserID] = len(merged)
			merged = append(merged, r)
			continue
		}
		merged[i].Points += r.Points
		merged[i].RedeemedPoints += r.RedeemedPoints
		removed++
	}
	m.records = merged
	return removed, nil
}

// InjectRecord appends a raw row without upsert semantics, so tests can
// construct duplicate-row states for MergeDuplicates.
func (m *Memory) InjectRecord(rec points.LedgerRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Unix(m.seq, 0)
	}
	if rec.Mode == "" {
		rec.Mode = points.ModeComputed
	}
	if rec.Standing == "" {
		rec.Standing = points.StandingActive
	}
	m.records = append(m.records, rec)
}

// RecordCount returns the number of stored rows, duplicates included.
func (m *Memory) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// =============================================================================
// USER DIRECTORY + BONUS MARKER
// =============================================================================

func (m *Memory) AddUser(u points.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
}

func (m *Memory) UserExists(_ context.Context, userID points.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *Memory) ListUserIDs(_ context.Context) ([]points.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]points.UserID, len(m.userOrder))
	copy(ids, m.userOrder)
	return ids, nil
}

func (m *Memory) GetUser(_ context.Context, userID points.UserID) (points.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return points.User{}, points.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) BonusAwarded(_ context.Context, userID points.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bonusMarker[userID], nil
}

func (m *Memory) SetBonusAwarded(_ context.Context, userID points.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return points.ErrUserNotFound
	}
	m.bonusMarker[userID] = true
	return nil
}

// =============================================================================
// ORDER SOURCE
// =============================================================================

// AddOrder registers an order with a status ("completed", "processing",
// "pending", ...) and the category ids its products belong to.
func (m *Memory) AddOrder(o points.Order, status string, categories ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		m.orderOrder = append(m.orderOrder, o.ID)
	}
	m.orders[o.ID] = &memOrder{order: o, status: status, categories: categories}
}

func countable(status string) bool {
	return status == "completed" || status == "processing"
}

func (m *Memory) ListCompletedOrders(_ context.Context) ([]points.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []points.Order
	for _, id := range m.orderOrder {
		if mo := m.orders[id]; countable(mo.status) {
			out = append(out, mo.order)
		}
	}
	return out, nil
}

func (m *Memory) ListCompletedOrdersByUser(_ context.Context, userID points.UserID) ([]points.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []points.Order
	for _, id := range m.orderOrder {
		if mo := m.orders[id]; countable(mo.status) && mo.order.UserID == userID {
			out = append(out, mo.order)
		}
	}
	return out, nil
}

func (m *Memory) GetOrder(_ context.Context, orderID points.OrderID) (points.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mo, ok := m.orders[orderID]
	if !ok {
		return points.Order{}, points.ErrOrderNotFound
	}
	return mo.order, nil
}

func (m *Memory) SetAccrualMarker(_ context.Context, orderID points.OrderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mo, ok := m.orders[orderID]
	if !ok {
		return points.ErrOrderNotFound
	}
	mo.order.Awarded = true
	return nil
}

func (m *Memory) OrderQualifies(_ context.Context, orderID points.OrderID, categories []string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mo, ok := m.orders[orderID]
	if !ok {
		return false, points.ErrOrderNotFound
	}
	for _, want := range categories {
		for _, have := range mo.categories {
			if want == have {
				return true, nil
			}
		}
	}
	return false, nil
}

// Compile-time interface checks.
var (
	_ points.Store            = (*Memory)(nil)
	_ points.UserDirectory    = (*Memory)(nil)
	_ points.OrderSource      = (*Memory)(nil)
	_ points.BonusMarkerStore = (*Memory)(nil)
)
