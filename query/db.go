package query

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed data/schema.sql
var schemaSQL string

// Open opens the report database at path and creates missing tables. ":memory:" opens a
// private in-memory database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create report tables: %w", err)
	}
	return nil
}

// SearchRow is one day of predicted searches for an origin city and destination.
type SearchRow struct {
	Destination string
	Country     string
	City        string
	Year        int
	Month       string
	Day         string
	Searches    float64
}

type WindowRow struct {
	Destination string
	Country     string
	City        string
	Year        int
	Month       string
	WindowDays  float64
}

type ClusterRow struct {
	Destination string
	Country     string
	City        string
	Year        int
	Month       string
	Profile     int
	WindowDays  float64
}

// ClimateRow splits the searches of an origin by the weather expected at destination.
type ClimateRow struct {
	Destination string
	Country     string
	City        string
	Year        int
	Month       string
	Cold        float64
	Mild        float64
	Warm        float64
}

// Loader writes report rows, normalizing names the way the executor compares them.
type Loader struct {
	db *sql.DB
	tr *Translations
}

func NewLoader(db *sql.DB, tr *Translations) *Loader {
	return &Loader{db: db, tr: tr}
}

func (l *Loader) insert(ctx context.Context, stmt string, rows [][]any) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()
	for _, args := range rows {
		if _, err = prepared.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// place returns the normalized destination, country and city columns.
func (l *Loader) place(dest, country, city string) []any {
	return []any{Normalize(dest), Normalize(l.tr.Country(country)), Normalize(city)}
}

func (l *Loader) AddSearches(ctx context.Context, rows ...SearchRow) error {
	args := make([][]any, 0, len(rows))
	for _, r := range rows {
		args = append(args, append(l.place(r.Destination, r.Country, r.City), r.Year, Normalize(r.Month), r.Day, r.Searches))
	}
	return l.insert(ctx, `INSERT INTO searches (destination_city, origin_country, origin_city, year, month, search_day, searches) VALUES (?, ?, ?, ?, ?, ?, ?)`, args)
}

func (l *Loader) AddWindows(ctx context.Context, rows ...WindowRow) error {
	args := make([][]any, 0, len(rows))
	for _, r := range rows {
		args = append(args, append(l.place(r.Destination, r.Country, r.City), r.Year, Normalize(r.Month), r.WindowDays))
	}
	return l.insert(ctx, `INSERT INTO opportunity_window (destination_city, origin_country, origin_city, year, month, window_days) VALUES (?, ?, ?, ?, ?, ?)`, args)
}

func (l *Loader) AddClusters(ctx context.Context, rows ...ClusterRow) error {
	args := make([][]any, 0, len(rows))
	for _, r := range rows {
		args = append(args, append(l.place(r.Destination, r.Country, r.City), r.Year, Normalize(r.Month), r.Profile, r.WindowDays))
	}
	return l.insert(ctx, `INSERT INTO clusters (destination_city, origin_country, origin_city, year, month, profile, window_days) VALUES (?, ?, ?, ?, ?, ?, ?)`, args)
}

func (l *Loader) AddClimate(ctx context.Context, rows ...ClimateRow) error {
	args := make([][]any, 0, len(rows))
	for _, r := range rows {
		args = append(args, append(l.place(r.Destination, r.Country, r.City), r.Year, Normalize(r.Month), r.Cold, r.Mild, r.Warm))
	}
	return l.insert(ctx, `INSERT INTO climate_searches (destination_city, origin_country, origin_city, year, month, searches_cold, searches_mild, searches_warm) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args)
}
