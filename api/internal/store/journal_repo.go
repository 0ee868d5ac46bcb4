package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JournalEntry is one row of annotation_saves.
type JournalEntry struct {
	ID       string    `json:"id"`
	Dir      string    `json:"dir"`
	Filename string    `json:"filename"`
	Items    int       `json:"items"`
	SHA256   string    `json:"sha256"`
	SavedAt  time.Time `json:"saved_at"`
}

// JournalRepo keeps a history of record saves in SQL. Driver is "pgx" or "sqlite";
// queries are written with ? and rebound to $n for pgx.
type JournalRepo struct {
	DB     *sql.DB
	driver string
}

func NewJournalRepo(db *sql.DB, driver string) *JournalRepo {
	return &JournalRepo{DB: db, driver: driver}
}

// OpenJournal opens the database, checks it is reachable and creates the schema.
// The caller must have imported the driver.
func OpenJournal(ctx context.Context, driver, dsn string) (*JournalRepo, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	r := NewJournalRepo(db, driver)
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *JournalRepo) Close() error { return r.DB.Close() }

func (r *JournalRepo) Migrate(ctx context.Context) error {
	stmts := []string{
		`create table if not exists annotation_saves (
  id       text primary key,
  dir      text not null,
  filename text not null,
  items    integer not null,
  sha256   text not null,
  saved_at bigint not null
)`,
		`create index if not exists annotation_saves_filename_idx on annotation_saves (filename, saved_at)`,
	}
	for _, q := range stmts {
		if _, err := r.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Record appends a save. Implements SaveRecorder.
func (r *JournalRepo) Record(ctx context.Context, s Save) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	const q = `insert into annotation_saves (id, dir, filename, items, sha256, saved_at) values (?,?,?,?,?,?)`
	_, err := r.DB.ExecContext(ctx, r.rebind(q),
		uuid.NewString(), s.Dir, s.Filename, s.Items, s.SHA256, s.SavedAt.UnixMilli())
	return err
}

// Recent returns the newest saves of filename first. limit <= 0 means 20.
func (r *JournalRepo) Recent(ctx context.Context, filename string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `select id, dir, filename, items, sha256, saved_at
from annotation_saves
where filename = ?
order by saved_at desc, id desc
limit ?`
	rows, err := r.DB.QueryContext(ctx, r.rebind(q), filename, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var (
			e  JournalEntry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.Dir, &e.Filename, &e.Items, &e.SHA256, &ms); err != nil {
			return nil, err
		}
		e.SavedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes saves older than the given age so the journal does not grow without bound.
func (r *JournalRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	const q = `delete from annotation_saves where saved_at < ?`
	res, err := r.DB.ExecContext(ctx, r.rebind(q), cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func (r *JournalRepo) rebind(q string) string {
	if r.driver != "pgx" {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
