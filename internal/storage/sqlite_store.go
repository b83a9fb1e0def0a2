package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

var (
	// ErrNotFound is returned when a listing or snapshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a listing id is already taken.
	ErrConflict = errors.New("already exists")
)

const defaultListLimit = 20

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  district TEXT NOT NULL DEFAULT '',
  municipality TEXT NOT NULL DEFAULT '',
  parish TEXT NOT NULL DEFAULT '',
  latitude REAL,
  longitude REAL,
  typology TEXT NOT NULL DEFAULT '',
  area_sqm REAL NOT NULL DEFAULT 0,
  bedrooms INTEGER NOT NULL DEFAULT 0,
  bathrooms INTEGER NOT NULL DEFAULT 0,
  price REAL NOT NULL DEFAULT 0,
  portal_count INTEGER NOT NULL DEFAULT 0,
  first_seen_at TEXT NOT NULL DEFAULT '',
  last_seen_at TEXT NOT NULL DEFAULT '',
  availability_probability REAL
);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_municipality ON listings(municipality);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);`,
		`
CREATE TABLE IF NOT EXISTS model_snapshots (
  version INTEGER PRIMARY KEY AUTOINCREMENT,
  saved_at TEXT NOT NULL,
  sample_count INTEGER NOT NULL,
  accuracy REAL NOT NULL,
  checksum TEXT NOT NULL,
  state_json TEXT NOT NULL
);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

const listingColumns = `id, title, district, municipality, parish, latitude, longitude, typology,
area_sqm, bedrooms, bathrooms, price, portal_count, first_seen_at, last_seen_at, availability_probability`

const insertListing = `INSERT %s INTO listings (` + listingColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// UpsertMany inserts a seed dataset without duplicating by id.
func (s *SQLiteStore) UpsertMany(ctx context.Context, items []domain.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(insertListing, "OR IGNORE"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range items {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, listingArgs(l)...); err != nil {
			return fmt.Errorf("insert listing %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

// CreateListing stores l, assigning a UUID when it has no id.
func (s *SQLiteStore) CreateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(insertListing, ""), listingArgs(l)...); err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return domain.Listing{}, fmt.Errorf("%w: listing %s", ErrConflict, l.ID)
		}
		return domain.Listing{}, fmt.Errorf("create listing: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) DeleteListing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, ErrNotFound
	}
	if err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

// AllListings returns every stored listing ordered by id.
func (s *SQLiteStore) AllListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// ListingFilter narrows ListListingsFiltered. Zero values disable a filter.
type ListingFilter struct {
	Limit  int
	Offset int
	// Location matches district, municipality or parish (contains, case-insensitive).
	Location    string
	Typology    string
	MinPrice    float64
	MaxPrice    float64
	MinBedrooms int
	// Sort is price_asc, price_desc or empty for id order.
	Sort string
}

func (s *SQLiteStore) ListListingsFiltered(ctx context.Context, f ListingFilter) ([]domain.Listing, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := make([]string, 0, 5)
	args := make([]any, 0, 8)

	if loc := strings.TrimSpace(f.Location); loc != "" {
		where = append(where, `(LOWER(municipality) LIKE '%' || LOWER(?) || '%'
  OR LOWER(parish) LIKE '%' || LOWER(?) || '%'
  OR LOWER(district) LIKE '%' || LOWER(?) || '%')`)
		args = append(args, loc, loc, loc)
	}
	if f.Typology != "" {
		where = append(where, "UPPER(typology) = UPPER(?)")
		args = append(args, f.Typology)
	}
	if f.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.MinBedrooms > 0 {
		where = append(where, "bedrooms >= ?")
		args = append(args, f.MinBedrooms)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	orderSQL := "ORDER BY id"
	switch f.Sort {
	case "price_asc":
		orderSQL = "ORDER BY price ASC, id"
	case "price_desc":
		orderSQL = "ORDER BY price DESC, id"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT " + listingColumns + " FROM listings\n" + whereSQL + "\n" + orderSQL + "\nLIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, q, append(append([]any{}, args...), f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanListings(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func listingArgs(l domain.Listing) []any {
	return []any{
		l.ID, l.Title, l.District, l.Municipality, l.Parish,
		nullFloat(l.Latitude), nullFloat(l.Longitude),
		l.Typology, l.AreaSQM, l.Bedrooms, l.Bathrooms, l.Price, l.PortalCount,
		formatTime(l.FirstSeenAt), formatTime(l.LastSeenAt),
		nullFloat(l.AvailabilityProbability),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (domain.Listing, error) {
	var (
		l                   domain.Listing
		lat, lon, avail     sql.NullFloat64
		firstSeen, lastSeen string
	)
	if err := row.Scan(
		&l.ID, &l.Title, &l.District, &l.Municipality, &l.Parish, &lat, &lon,
		&l.Typology, &l.AreaSQM, &l.Bedrooms, &l.Bathrooms, &l.Price, &l.PortalCount,
		&firstSeen, &lastSeen, &avail,
	); err != nil {
		return domain.Listing{}, err
	}
	l.Latitude = floatPtr(lat)
	l.Longitude = floatPtr(lon)
	l.AvailabilityProbability = floatPtr(avail)

	var err error
	if l.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return domain.Listing{}, fmt.Errorf("listing %s first_seen_at: %w", l.ID, err)
	}
	if l.LastSeenAt, err = parseTime(lastSeen); err != nil {
		return domain.Listing{}, fmt.Errorf("listing %s last_seen_at: %w", l.ID, err)
	}
	return l, nil
}

func scanListings(rows *sql.Rows) ([]domain.Listing, error) {
	out := []domain.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
