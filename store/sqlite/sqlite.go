/*
Package sqlite provides the SQLite-backed implementation of every
persistence boundary in the loyalty engine.

PURPOSE:
  One store implements points.Store (the ledger), points.UserDirectory,
  points.OrderSource and points.BonusMarkerStore, plus the settings table
  the API layer reads its Config from. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  ledger:   per-user aggregate {points, redeemed_points, mode, standing}
  users:    directory entries + the registration-bonus-awarded marker
  orders:   order records + the per-order accrual marker
  settings: key/value program settings

ATOMIC PRIMITIVES:
  Triggers may run in separate processes, so correctness comes from single
  conditional statements, not application locks:
  - UpsertAdd: UPDATE-increment, INSERT on zero rows, inside one tx
  - Redeem: decrement guarded on points >= n in the same UPDATE
  The ledger table deliberately has NO unique index on user_id: the system
  it models accumulated duplicate rows in the wild, and MergeDuplicates is
  the healing path. Writes always target the earliest row per user.

CONCURRENCY:
  sync.Mutex for in-process safety plus WAL mode. Cross-process safety
  rides on SQLite's single-writer transactions.

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := points.NewEngine(store, store, store, store)

SEE ALSO:
  - points/store.go: interface definitions
  - points/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/points"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger (one row per user; duplicates are a violation healed by merge,
	-- hence NO unique index on user_id)
	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		redeemed_points INTEGER NOT NULL DEFAULT 0,
		mode TEXT NOT NULL DEFAULT 'computed',
		standing TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger(user_id);

	-- Users (directory + registration-bonus marker)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT,
		display_name TEXT,
		bonus_awarded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Orders (order source + per-order accrual marker)
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		total TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		category_ids TEXT,
		points_awarded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

	-- Settings (key/value)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER (points.Store interface)
// =============================================================================

const countableStatuses = "('completed', 'processing')"

// Get returns the earliest row for a user, or a zero-value record.
func (s *Store) Get(ctx context.Context, userID points.UserID) (points.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, points, redeemed_points, mode, standing, created_at
		FROM ledger WHERE user_id = ?
		ORDER BY id ASC LIMIT 1
	`, userID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return points.ZeroRecord(userID), nil
	}
	if err != nil {
		return points.LedgerRecord{}, fmt.Errorf("failed to read ledger record: %w", err)
	}
	return rec, nil
}

// UpsertAdd increments the earliest row or inserts a fresh one, in a
// single transaction so concurrent accrual triggers never lose updates.
func (s *Store) UpsertAdd(ctx context.Context, userID points.UserID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ledger SET points = points + ?
		WHERE id = (SELECT MIN(id) FROM ledger WHERE user_id = ?)
	`, delta, userID)
	if err != nil {
		return fmt.Errorf("failed to increment points: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger (user_id, points, redeemed_points, mode, standing, created_at)
			VALUES (?, ?, 0, 'computed', 'active', ?)
		`, userID, delta, now())
		if err != nil {
			return fmt.Errorf("failed to insert ledger record: %w", err)
		}
	}

	return tx.Commit()
}

// SetAbsolute pins the earliest row to an exact total, returning the
// previous value. Never creates a row.
func (s *Store) SetAbsolute(ctx context.Context, userID points.UserID, newPoints int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prev int64
	err = tx.QueryRowContext(ctx, `
		SELECT points FROM ledger WHERE user_id = ? ORDER BY id ASC LIMIT 1
	`, userID).Scan(&prev)
	if err == sql.ErrNoRows {
		return 0, points.ErrRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ledger SET points = ?, mode = 'pinned'
		WHERE id = (SELECT MIN(id) FROM ledger WHERE user_id = ?)
	`, newPoints, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to set points: %w", err)
	}

	return prev, tx.Commit()
}

// SetStanding revokes or restores a user, creating a zero row if needed so
// the revocation sticks.
func (s *Store) SetStanding(ctx context.Context, userID points.UserID, standing points.Standing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ledger SET standing = ?
		WHERE id = (SELECT MIN(id) FROM ledger WHERE user_id = ?)
	`, standing, userID)
	if err != nil {
		return fmt.Errorf("failed to set standing: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger (user_id, points, redeemed_points, mode, standing, created_at)
			VALUES (?, 0, 0, 'computed', ?, ?)
		`, userID, standing, now())
		if err != nil {
			return fmt.Errorf("failed to insert ledger record: %w", err)
		}
	}

	return tx.Commit()
}

// Redeem moves n points to redeemed_points, guarded on sufficiency in the
// same conditional UPDATE. Two concurrent redemptions cannot both pass.
func (s *Store) Redeem(ctx context.Context, userID points.UserID, n int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger
		SET points = points - ?, redeemed_points = redeemed_points + ?
		WHERE id = (SELECT MIN(id) FROM ledger WHERE user_id = ?)
		  AND points >= ?
	`, n, n, userID, n)
	if err != nil {
		return false, fmt.Errorf("failed to redeem points: %w", err)
	}

	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RescaleAll multiplies every record's points by factor, flooring with
// exact decimal math. Runs inside one transaction; the documented race
// with a concurrent single-user accrual is accepted.
func (s *Store) RescaleAll(ctx context.Context, factor decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, points FROM ledger`)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger: %w", err)
	}

	type rescaled struct {
		id  int64
		pts int64
	}
	var updates []rescaled
	for rows.Next() {
		var id, pts int64
		if err := rows.Scan(&id, &pts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		updates = append(updates, rescaled{id: id, pts: points.RescalePoints(pts, factor)})
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE ledger SET points = ? WHERE id = ?`, u.pts, u.id); err != nil {
			return 0, fmt.Errorf("failed to rescale ledger row: %w", err)
		}
	}

	return int64(len(updates)), tx.Commit()
}

// MergeDuplicates sums duplicate rows into the earliest one per user and
// deletes the rest. Idempotent: after one pass there is exactly one row
// per user and another pass changes nothing.
func (s *Store) MergeDuplicates(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, MIN(id), SUM(points), SUM(redeemed_points)
		FROM ledger
		GROUP BY user_id
		HAVING COUNT(*) > 1
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to find duplicates: %w", err)
	}

	type group struct {
		userID   string
		keepID   int64
		points   int64
		redeemed int64
	}
	var groups []group
	for rows.Next() {
		var g group
		if err := rows.Scan(&g.userID, &g.keepID, &g.points, &g.redeemed); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan duplicate group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	var removed int64
	for _, g := range groups {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger SET points = ?, redeemed_points = ? WHERE id = ?
		`, g.points, g.redeemed, g.keepID); err != nil {
			return 0, fmt.Errorf("failed to merge into row %d: %w", g.keepID, err)
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM ledger WHERE user_id = ? AND id != ?
		`, g.userID, g.keepID)
		if err != nil {
			return 0, fmt.Errorf("failed to delete duplicate rows: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	return removed, tx.Commit()
}

// InjectRecord inserts a raw ledger row without upsert semantics, so tests
// and migrations can construct duplicate-row states.
func (s *Store) InjectRecord(ctx context.Context, rec points.LedgerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := rec.Mode
	if mode == "" {
		mode = points.ModeComputed
	}
	standing := rec.Standing
	if standing == "" {
		standing = points.StandingActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (user_id, points, redeemed_points, mode, standing, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.UserID, rec.Points, rec.RedeemedPoints, mode, standing, now())
	return err
}

// RecordCount returns the number of ledger rows, duplicates included.
func (s *Store) RecordCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&n)
	return n, err
}

// =============================================================================
// USER DIRECTORY (points.UserDirectory + points.BonusMarkerStore)
// =============================================================================

// SaveUser creates or updates a directory entry.
func (s *Store) SaveUser(ctx context.Context, u points.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name
	`, u.ID, u.Email, u.DisplayName, now())
	return err
}

func (s *Store) UserExists(ctx context.Context, userID points.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&count)
	return count > 0, err
}

func (s *Store) ListUserIDs(ctx context.Context) ([]points.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []points.UserID
	for rows.Next() {
		var id points.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, userID points.UserID) (points.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u points.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.Email, &u.DisplayName)
	if err == sql.ErrNoRows {
		return points.User{}, points.ErrUserNotFound
	}
	if err != nil {
		return points.User{}, err
	}
	return u, nil
}

// ListUsers returns all directory entries (for the API list endpoint).
func (s *Store) ListUsers(ctx context.Context) ([]points.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name FROM users ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []points.User
	for rows.Next() {
		var u points.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) BonusAwarded(ctx context.Context, userID points.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var awarded bool
	err := s.db.QueryRowContext(ctx, `SELECT bonus_awarded FROM users WHERE id = ?`, userID).Scan(&awarded)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return awarded, err
}

func (s *Store) SetBonusAwarded(ctx context.Context, userID points.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE users SET bonus_awarded = 1 WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	// Zero rows means no directory entry; surfacing it keeps the caller's
	// credit-then-mark sequence retry-safe instead of silently unmarked.
	if n, _ := res.RowsAffected(); n == 0 {
		return points.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// ORDER SOURCE (points.OrderSource)
// =============================================================================

// OrderRecord is a stored order, including fields the engine does not see.
type OrderRecord struct {
	ID          points.OrderID
	UserID      points.UserID
	Total       decimal.Decimal
	Status      string
	CategoryIDs []string
	Awarded     bool
	CreatedAt   time.Time
}

// SaveOrder creates or updates an order.
func (s *Store) SaveOrder(ctx context.Context, o OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	categoryJSON, _ := json.Marshal(o.CategoryIDs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, category_ids, points_awarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			total = excluded.total,
			status = excluded.status,
			category_ids = excluded.category_ids
	`, o.ID, string(o.UserID), o.Total.String(), o.Status, string(categoryJSON), o.Awarded, now())
	return err
}

// SetOrderStatus updates just the status column.
func (s *Store) SetOrderStatus(ctx context.Context, orderID points.OrderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return points.ErrOrderNotFound
	}
	return nil
}

func (s *Store) ListCompletedOrders(ctx context.Context) ([]points.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryOrders(ctx, `
		SELECT id, user_id, total, points_awarded FROM orders
		WHERE status IN `+countableStatuses+`
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *Store) ListCompletedOrdersByUser(ctx context.Context, userID points.UserID) ([]points.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryOrders(ctx, `
		SELECT id, user_id, total, points_awarded FROM orders
		WHERE status IN `+countableStatuses+` AND user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]points.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []points.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, orderID points.OrderID) (points.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		o      points.Order
		userID sql.NullString
		total  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, points_awarded FROM orders WHERE id = ?
	`, orderID).Scan(&o.ID, &userID, &total, &o.Awarded)
	if err == sql.ErrNoRows {
		return points.Order{}, points.ErrOrderNotFound
	}
	if err != nil {
		return points.Order{}, fmt.Errorf("failed to read order: %w", err)
	}
	o.UserID = points.UserID(userID.String)
	o.Total = mustDecimal(total)
	return o, nil
}

// GetOrderRecord returns the full stored order (for the API layer).
func (s *Store) GetOrderRecord(ctx context.Context, orderID points.OrderID) (OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		rec          OrderRecord
		userID       sql.NullString
		total        string
		categoryJSON sql.NullString
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, category_ids, points_awarded, created_at
		FROM orders WHERE id = ?
	`, orderID).Scan(&rec.ID, &userID, &total, &rec.Status, &categoryJSON, &rec.Awarded, &createdAt)
	if err == sql.ErrNoRows {
		return OrderRecord{}, points.ErrOrderNotFound
	}
	if err != nil {
		return OrderRecord{}, err
	}

	rec.UserID = points.UserID(userID.String)
	rec.Total = mustDecimal(total)
	rec.CategoryIDs, err = parseCategories(categoryJSON)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("order %s: %w", orderID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

// ListOrderRecords returns all stored orders (for the API list endpoint).
func (s *Store) ListOrderRecords(ctx context.Context) ([]OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, total, status, category_ids, points_awarded, created_at
		FROM orders ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []OrderRecord
	for rows.Next() {
		var (
			rec          OrderRecord
			userID       sql.NullString
			total        string
			categoryJSON sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&rec.ID, &userID, &total, &rec.Status, &categoryJSON, &rec.Awarded, &createdAt); err != nil {
			return nil, err
		}
		rec.UserID = points.UserID(userID.String)
		rec.Total = mustDecimal(total)
		rec.CategoryIDs, err = parseCategories(categoryJSON)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", rec.ID, err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) SetAccrualMarker(ctx context.Context, orderID points.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE orders SET points_awarded = 1 WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("failed to set accrual marker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return points.ErrOrderNotFound
	}
	return nil
}

func (s *Store) OrderQualifies(ctx context.Context, orderID points.OrderID, categories []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var categoryJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT category_ids FROM orders WHERE id = ?`, orderID).Scan(&categoryJSON)
	if err == sql.ErrNoRows {
		return false, points.ErrOrderNotFound
	}
	if err != nil {
		return false, err
	}

	orderCats, err := parseCategories(categoryJSON)
	if err != nil {
		return false, fmt.Errorf("order %s: %w", orderID, err)
	}
	for _, want := range categories {
		for _, have := range orderCats {
			if want == have {
				return true, nil
			}
		}
	}
	return false, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// Setting keys. The rate is clamped on save AND on load, so the settings
// layer and the conversion policy agree on the floor independently.
const (
	settingConversionRate     = "conversion_rate"
	settingRegistrationBonus  = "registration_bonus"
	settingPurchaseEnabled    = "purchase_enabled"
	settingCategoryRestricted = "category_restricted"
	settingAllowedCategories  = "allowed_category_ids"
)

// DefaultConfig is what a fresh store reports before any settings save.
func DefaultConfig() points.Config {
	return points.Config{
		ConversionRate:    decimal.NewFromInt(1),
		RegistrationBonus: 10,
		PurchaseEnabled:   true,
	}
}

// HasStoredConfig reports whether any settings were ever saved. Used to
// decide whether a seed file should apply.
func (s *Store) HasStoredConfig(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&n)
	return n > 0, err
}

// LoadConfig reads the program settings into a Config value object.
func (s *Store) LoadConfig(ctx context.Context) (points.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return points.Config{}, err
	}
	defer rows.Close()

	cfg := DefaultConfig()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return points.Config{}, err
		}
		if err := applySetting(&cfg, key, value); err != nil {
			return points.Config{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return points.Config{}, err
	}
	return cfg.Normalize(), nil
}

// SaveConfig persists the program settings, clamped.
func (s *Store) SaveConfig(ctx context.Context, cfg points.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg = cfg.Normalize()
	categoryJSON, _ := json.Marshal(cfg.AllowedCategories)

	pairs := map[string]string{
		settingConversionRate:     cfg.ConversionRate.String(),
		settingRegistrationBonus:  fmt.Sprintf("%d", cfg.RegistrationBonus),
		settingPurchaseEnabled:    boolSetting(cfg.PurchaseEnabled),
		settingCategoryRestricted: boolSetting(cfg.CategoryRestricted),
		settingAllowedCategories:  string(categoryJSON),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range pairs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// applySetting parses one stored settings row into cfg. A value that fails
// to parse is corruption, surfaced instead of silently falling back to the
// default.
func applySetting(cfg *points.Config, key, value string) error {
	switch key {
	case settingConversionRate:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("corrupt setting %s=%q: %w", key, value, err)
		}
		cfg.ConversionRate = d
	case settingRegistrationBonus:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt setting %s=%q: %w", key, value, err)
		}
		cfg.RegistrationBonus = n
	case settingPurchaseEnabled:
		b, err := parseBoolSetting(value)
		if err != nil {
			return fmt.Errorf("corrupt setting %s: %w", key, err)
		}
		cfg.PurchaseEnabled = b
	case settingCategoryRestricted:
		b, err := parseBoolSetting(value)
		if err != nil {
			return fmt.Errorf("corrupt setting %s: %w", key, err)
		}
		cfg.CategoryRestricted = b
	case settingAllowedCategories:
		if value == "" || value == "null" {
			return nil
		}
		if err := json.Unmarshal([]byte(value), &cfg.AllowedCategories); err != nil {
			return fmt.Errorf("corrupt setting %s: %w", key, err)
		}
	}
	return nil
}

func parseBoolSetting(value string) (bool, error) {
	switch value {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("want 0 or 1, got %q", value)
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (points.LedgerRecord, error) {
	var (
		rec       points.LedgerRecord
		createdAt string
	)
	err := row.Scan(&rec.UserID, &rec.Points, &rec.RedeemedPoints, &rec.Mode, &rec.Standing, &createdAt)
	if err != nil {
		return rec, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

func scanOrder(rows *sql.Rows) (points.Order, error) {
	var (
		o      points.Order
		userID sql.NullString
		total  string
	)
	if err := rows.Scan(&o.ID, &userID, &total, &o.Awarded); err != nil {
		return o, fmt.Errorf("failed to scan order: %w", err)
	}
	o.UserID = points.UserID(userID.String)
	o.Total = mustDecimal(total)
	return o, nil
}

// parseCategories decodes a stored category-id JSON blob.
func parseCategories(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var cats []string
	if err := json.Unmarshal([]byte(raw.String), &cats); err != nil {
		return nil, fmt.Errorf("corrupt category list: %w", err)
	}
	return cats, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolSetting(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Compile-time interface checks.
var (
	_ points.Store            = (*Store)(nil)
	_ points.UserDirectory    = (*Store)(nil)
	_ points.OrderSource      = (*Store)(nil)
	_ points.BonusMarkerStore = (*Store)(nil)
)
