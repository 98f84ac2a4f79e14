/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Implements ledger.Backend (Store, TxStore, QueryStore) using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store:      Party and transaction rows
  ledger.TxStore:    Unit of work over a database/sql transaction
  ledger.QueryStore: Filtered listings, windowed sums and rollups

KEY TABLES:
  parties:      Suppliers and customers with their cached balance
  transactions: The mutable transaction log

MONEY:
  Amounts and balances are stored as INTEGER minor units (cents). The
  domain allows at most two decimal places, so the conversion is exact
  and SUM() never rounds. A value whose cents do not fit in int64 is
  rejected with a ledger.ValidationError instead of being written.

SEARCH:
  Search folds case with ledger_lower (strings.ToLower registered as a
  deterministic SQL function), matching ledger.Filter.Matches for
  non-ASCII text.

TIME:
  Timestamps are stored as fixed-width UTC text (timeLayout) so that
  lexical order equals chronological order and ORDER BY date works.

INDEXES:
  - idx_transactions_owner_canonical: canonical order scans (hot path)
  - idx_transactions_party: party history and opening balances
  - idx_parties_owner_model_name: one name per owner and variant

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection. SQLITE_BUSY
  and SQLITE_LOCKED surface as ledger.ErrConflict so callers can retry.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, log)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// driverName is go-sqlite3 with ledger_lower registered on every connection.
// SQLite's built-in lower() folds ASCII only; search must fold the way
// ledger.Filter.Matches does.
const driverName = "sqlite3_ledger"

var registerDriver sync.Once

func register() {
	registerDriver.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("ledger_lower", strings.ToLower, true)
			},
		})
	})
}

// Store implements ledger.Backend using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	register()
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: required for :memory: and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS parties (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		model TEXT NOT NULL CHECK (model IN ('Supplier', 'Customer')),
		name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		address TEXT,
		balance_minor INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_parties_owner_model_name
		ON parties(owner_id, model, name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		date TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		party_model TEXT NOT NULL,
		party_id TEXT NOT NULL REFERENCES parties(id),
		mode TEXT NOT NULL,
		description TEXT,
		amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_owner_canonical
		ON transactions(owner_id, date, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_party
		ON transactions(party_model, party_id, date, created_at, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW ACCESS (ledger.Store)
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) GetParty(ctx context.Context, model ledger.PartyModel, id ledger.PartyID) (*ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getParty(ctx, s.db, model, id)
}

func getParty(ctx context.Context, q querier, model ledger.PartyModel, id ledger.PartyID) (*ledger.Party, error) {
	query := `
		SELECT id, owner_id, model, name, phone, email, address, balance_minor, created_at, updated_at
		FROM parties
		WHERE id = ? AND model = ?
	`

	var (
		p                    ledger.Party
		phone, email, addr   sql.NullString
		balance              int64
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, query, id, model).Scan(
		&p.ID, &p.OwnerID, &p.Model, &p.Name, &phone, &email, &addr,
		&balance, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrPartyNotFound
	}
	if err != nil {
		return nil, mapError("get party", err)
	}

	p.Phone = phone.String
	p.Email = email.String
	p.Address = addr.String
	p.Balance = fromMinor(balance)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (s *Store) InsertParty(ctx context.Context, p ledger.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertParty(ctx, s.db, p)
}

func insertParty(ctx context.Context, q querier, p ledger.Party) error {
	balance, err := toMinor(p.Balance)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO parties
		(id, owner_id, model, name, phone, email, address, balance_minor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = q.ExecContext(ctx, query,
		p.ID, p.OwnerID, p.Model, p.Name,
		nullString(p.Phone), nullString(p.Email), nullString(p.Address),
		balance,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateParty
		}
		return mapError("insert party", err)
	}
	return nil
}

func (s *Store) SavePartyBalance(ctx context.Context, p ledger.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePartyBalance(ctx, s.db, p)
}

func savePartyBalance(ctx context.Context, q querier, p ledger.Party) error {
	balance, err := toMinor(p.Balance)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		`UPDATE parties SET balance_minor = ?, updated_at = ? WHERE id = ? AND model = ?`,
		balance, formatTime(p.UpdatedAt), p.ID, p.Model,
	)
	if err != nil {
		return mapError("save party balance", err)
	}
	return requireAffected(res, ledger.ErrPartyNotFound)
}

const transactionColumns = `t.id, t.owner_id, t.date, t.tx_type, t.party_model, t.party_id,
		       t.mode, t.description, t.amount_minor, t.created_at, t.updated_at`

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, q querier, id ledger.TransactionID) (*ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	if err != nil {
		return nil, mapError("get transaction", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapError("get transaction", err)
		}
		return nil, ledger.ErrTransactionNotFound
	}
	tx, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, tx)
}

func insertTransaction(ctx context.Context, q querier, tx ledger.Transaction) error {
	amount, err := toMinor(tx.Amount)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transactions
		(id, owner_id, date, tx_type, party_model, party_id, mode, description,
		 amount_minor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = q.ExecContext(ctx, query,
		tx.ID, tx.OwnerID, formatTime(tx.Date), tx.Type, tx.PartyModel, tx.PartyID,
		tx.Mode, nullString(tx.Description), amount,
		formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ledger.ErrPartyNotFound
		}
		return mapError("insert transaction", err)
	}
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransaction(ctx, s.db, tx)
}

func updateTransaction(ctx context.Context, q querier, tx ledger.Transaction) error {
	amount, err := toMinor(tx.Amount)
	if err != nil {
		return err
	}
	query := `
		UPDATE transactions
		SET date = ?, tx_type = ?, party_model = ?, party_id = ?, mode = ?,
		    description = ?, amount_minor = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := q.ExecContext(ctx, query,
		formatTime(tx.Date), tx.Type, tx.PartyModel, tx.PartyID, tx.Mode,
		nullString(tx.Description), amount, formatTime(tx.UpdatedAt),
		tx.ID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ledger.ErrPartyNotFound
		}
		return mapError("update transaction", err)
	}
	return requireAffected(res, ledger.ErrTransactionNotFound)
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteTransaction(ctx, s.db, id)
}

func deleteTransaction(ctx context.Context, q querier, id ledger.TransactionID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return mapError("delete transaction", err)
	}
	return requireAffected(res, ledger.ErrTransactionNotFound)
}

func (s *Store) SumPartyDeltas(ctx context.Context, model ledger.PartyModel, id ledger.PartyID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumPartyDeltas(ctx, s.db, model, id)
}

func sumPartyDeltas(ctx context.Context, q querier, model ledger.PartyModel, id ledger.PartyID) (decimal.Decimal, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(`+signedAmount+`), 0) FROM transactions t
		 WHERE t.party_model = ? AND t.party_id = ?`,
		model, id,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, mapError("sum party deltas", err)
	}
	return fromMinor(sum), nil
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                         ledger.Transaction
		date, createdAt, updatedAt string
		description                sql.NullString
		amount                     int64
	)

	err := rows.Scan(
		&tx.ID, &tx.OwnerID, &date, &tx.Type, &tx.PartyModel, &tx.PartyID,
		&tx.Mode, &description, &amount, &createdAt, &updatedAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Date = parseTime(date)
	tx.Description = description.String
	tx.Amount = fromMinor(amount)
	tx.CreatedAt = parseTime(createdAt)
	tx.UpdatedAt = parseTime(updatedAt)
	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

// txStore reads and writes through the open transaction only; the parent
// lock is already held by WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetParty(ctx context.Context, model ledger.PartyModel, id ledger.PartyID) (*ledger.Party, error) {
	return getParty(ctx, ts.tx, model, id)
}

func (ts *txStore) InsertParty(ctx context.Context, p ledger.Party) error {
	return insertParty(ctx, ts.tx, p)
}

func (ts *txStore) SavePartyBalance(ctx context.Context, p ledger.Party) error {
	return savePartyBalance(ctx, ts.tx, p)
}

func (ts *txStore) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	return updateTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	return deleteTransaction(ctx, ts.tx, id)
}

func (ts *txStore) SumPartyDeltas(ctx context.Context, model ledger.PartyModel, id ledger.PartyID) (decimal.Decimal, error) {
	return sumPartyDeltas(ctx, ts.tx, model, id)
}

// =============================================================================
// QUERY STORE (ledger.QueryStore interface)
// =============================================================================

const signedAmount = `CASE WHEN t.tx_type IN ('Purchase', 'Sale') THEN t.amount_minor ELSE -t.amount_minor END`

// whereClause translates a Filter into SQL selecting exactly the rows
// ledger.Filter.Matches accepts.
func whereClause(f ledger.Filter) (string, []any) {
	conds := []string{"t.owner_id = ?"}
	args := []any{f.OwnerID}

	if f.PartyID != "" {
		conds = append(conds, "t.party_id = ?")
		args = append(args, f.PartyID)
	}
	if f.PartyModel != "" {
		conds = append(conds, "t.party_model = ?")
		args = append(args, f.PartyModel)
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, t)
		}
		conds = append(conds, "t.tx_type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		conds = append(conds, "t.date >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "t.date < ?")
		args = append(args, formatTime(*f.To))
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		conds = append(conds, "(instr(ledger_lower(COALESCE(t.description, '')), ?) > 0 OR instr(ledger_lower(t.tx_type), ?) > 0)")
		args = append(args, needle, needle)
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// windowClause orders canonically (or reversed) and applies LIMIT/OFFSET.
// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
func windowClause(w ledger.Window) (string, []any) {
	dir := "ASC"
	if w.Order == ledger.SortDesc {
		dir = "DESC"
	}
	limit := w.Limit
	if limit <= 0 {
		limit = -1
	}
	clause := fmt.Sprintf(" ORDER BY t.date %[1]s, t.created_at %[1]s, t.id %[1]s LIMIT ? OFFSET ?", dir)
	return clause, []any{limit, w.Offset}
}

func (s *Store) CountTransactions(ctx context.Context, f ledger.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t`+where, args...).Scan(&n); err != nil {
		return 0, mapError("count transactions", err)
	}
	return n, nil
}

func (s *Store) FindTransactions(ctx context.Context, f ledger.Filter, w ledger.Window) ([]ledger.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(f)
	window, wargs := windowClause(w)
	query := `
		SELECT ` + transactionColumns + `,
		       COALESCE(p.name, ''), COALESCE(p.balance_minor, 0)
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.model = t.party_model` + where + window

	rows, err := s.db.QueryContext(ctx, query, append(args, wargs...)...)
	if err != nil {
		return nil, mapError("find transactions", err)
	}
	defer rows.Close()

	var views []ledger.TransactionView
	for rows.Next() {
		var (
			v                          ledger.TransactionView
			date, createdAt, updatedAt string
			description                sql.NullString
			amount, balance            int64
		)
		err := rows.Scan(
			&v.ID, &v.OwnerID, &date, &v.Type, &v.PartyModel, &v.PartyID,
			&v.Mode, &description, &amount, &createdAt, &updatedAt,
			&v.PartyName, &balance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		v.Date = parseTime(date)
		v.Description = description.String
		v.Amount = fromMinor(amount)
		v.CreatedAt = parseTime(createdAt)
		v.UpdatedAt = parseTime(updatedAt)
		v.PartyBalance = fromMinor(balance)
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *Store) SumSignedDeltas(ctx context.Context, f ledger.Filter, w ledger.Window) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(f)
	window, wargs := windowClause(w)
	query := `SELECT COALESCE(SUM(signed), 0) FROM (
		SELECT ` + signedAmount + ` AS signed FROM transactions t` + where + window + `
	)`

	var sum int64
	if err := s.db.QueryRowContext(ctx, query, append(args, wargs...)...).Scan(&sum); err != nil {
		return decimal.Zero, mapError("sum signed deltas", err)
	}
	return fromMinor(sum), nil
}

func (s *Store) TypeTotals(ctx context.Context, f ledger.Filter) ([]ledger.TypeTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.tx_type, SUM(t.amount_minor), COUNT(*) FROM transactions t`+where+
			` GROUP BY t.tx_type ORDER BY MIN(t.rowid)`,
		args...)
	if err != nil {
		return nil, mapError("type totals", err)
	}
	defer rows.Close()

	var out []ledger.TypeTotal
	for rows.Next() {
		var (
			tt    ledger.TypeTotal
			total int64
		)
		if err := rows.Scan(&tt.Type, &total, &tt.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type total: %w", err)
		}
		tt.Total = fromMinor(total)
		out = append(out, tt)
	}
	return out, rows.Err()
}

func (s *Store) TopParties(ctx context.Context, f ledger.Filter, limit int) ([]ledger.PartyVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	where, args := whereClause(f)
	query := `
		SELECT t.party_id, COALESCE(MAX(p.name), ''), SUM(t.amount_minor) AS total, COUNT(*)
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.model = t.party_model` + where + `
		GROUP BY t.party_model, t.party_id
		ORDER BY total DESC, MIN(t.rowid) ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, mapError("top parties", err)
	}
	defer rows.Close()

	var out []ledger.PartyVolume
	for rows.Next() {
		var (
			pv    ledger.PartyVolume
			total int64
		)
		if err := rows.Scan(&pv.PartyID, &pv.PartyName, &total, &pv.Count); err != nil {
			return nil, fmt.Errorf("failed to scan party volume: %w", err)
		}
		pv.Total = fromMinor(total)
		out = append(out, pv)
	}
	return out, rows.Err()
}

func (s *Store) DailyTotals(ctx context.Context, f ledger.Filter) ([]ledger.DailyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(t.date, 1, 10) AS day, SUM(t.amount_minor), COUNT(*) FROM transactions t`+where+
			` GROUP BY day ORDER BY day ASC`,
		args...)
	if err != nil {
		return nil, mapError("daily totals", err)
	}
	defer rows.Close()

	var out []ledger.DailyTotal
	for rows.Next() {
		var (
			d     ledger.DailyTotal
			total int64
		)
		if err := rows.Scan(&d.Day, &total, &d.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily total: %w", err)
		}
		d.Total = fromMinor(total)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListPartyRefs(ctx context.Context) ([]ledger.PartyRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, model, id FROM parties ORDER BY owner_id, model, id`)
	if err != nil {
		return nil, mapError("list parties", err)
	}
	defer rows.Close()

	var refs []ledger.PartyRef
	for rows.Next() {
		var ref ledger.PartyRef
		if err := rows.Scan(&ref.OwnerID, &ref.Model, &ref.ID); err != nil {
			return nil, fmt.Errorf("failed to scan party ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// toMinor converts to integer cents, refusing values int64 cannot hold.
func toMinor(d decimal.Decimal) (int64, error) {
	m := d.Shift(2).Round(0)
	if m.GreaterThan(maxMinor) || m.LessThan(minMinor) {
		return 0, &ledger.ValidationError{Field: "amount", Message: fmt.Sprintf("%s is out of storable range", d)}
	}
	return m.IntPart(), nil
}

func fromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// mapError turns lock contention into ledger.ErrConflict and annotates
// everything else with the failing operation.
func mapError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %s: %v", ledger.ErrConflict, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
