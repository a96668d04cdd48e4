package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"engagepilot/internal/model"
	"engagepilot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertCooldown stores the last reply time for a handle.
func (s *SQLite) UpsertCooldown(ctx context.Context, entry model.CooldownEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cooldowns (handle, last_reply_at) VALUES (?, ?)
		 ON CONFLICT(handle) DO UPDATE SET last_reply_at = excluded.last_reply_at`,
		entry.Handle, entry.LastReplyAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert cooldown: %w", err)
	}
	return nil
}

// ListCooldowns returns every stored cooldown entry.
func (s *SQLite) ListCooldowns(ctx context.Context) ([]model.CooldownEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, last_reply_at FROM cooldowns ORDER BY handle`,
	)
	if err != nil {
		return nil, fmt.Errorf("query cooldowns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CooldownEntry
	for rows.Next() {
		var e model.CooldownEntry
		var at string
		if err := rows.Scan(&e.Handle, &at); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		e.LastReplyAt, _ = time.Parse(timeLayout, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkProcessed records that a candidate received an interaction.
func (s *SQLite) MarkProcessed(ctx context.Context, candidateID string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_posts (candidate_id, processed_at) VALUES (?, ?)`,
		candidateID, now,
	)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// ListProcessed returns processed candidate ids, oldest first.
func (s *SQLite) ListProcessed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id FROM processed_posts ORDER BY processed_at, candidate_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TrimProcessed deletes all but the most recent keep entries.
func (s *SQLite) TrimProcessed(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_posts WHERE candidate_id NOT IN (
		   SELECT candidate_id FROM processed_posts
		   ORDER BY processed_at DESC, candidate_id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return fmt.Errorf("trim processed: %w", err)
	}
	return nil
}

// GetDailyCount returns the interaction count stored for a calendar day.
// Missing days count as zero.
func (s *SQLite) GetDailyCount(ctx context.Context, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT interactions FROM daily_stats WHERE day = ?`, day,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily count: %w", err)
	}
	return count, nil
}

// UpsertDailyCount stores the interaction count for a calendar day.
func (s *SQLite) UpsertDailyCount(ctx context.Context, day string, count int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_stats (day, interactions) VALUES (?, ?)
		 ON CONFLICT(day) DO UPDATE SET interactions = excluded.interactions`,
		day, count,
	)
	if err != nil {
		return fmt.Errorf("upsert daily count: %w", err)
	}
	return nil
}

// CreateRule inserts a filter rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, rule *model.FilterRule) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO filter_rules (kind, value, created_at) VALUES (?, ?, ?)`,
		string(rule.Kind), rule.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListRules returns all filter rules.
func (s *SQLite) ListRules(ctx context.Context) ([]model.FilterRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, value, created_at FROM filter_rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.FilterRule
	for rows.Next() {
		var r model.FilterRule
		var kind, created string
		if err := rows.Scan(&r.ID, &kind, &r.Value, &created); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Kind = model.RuleKind(kind)
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteRule removes a filter rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filter_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// CreateSource inserts a capture source and populates its ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, url, is_active, created_at) VALUES (?, ?, ?, ?)`,
		src.Name, src.URL, boolToInt(src.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	src.ID = id
	src.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListSources returns all capture sources.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, is_active, created_at FROM sources ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var active int
		var created string
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &active, &created); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.IsActive = active == 1
		src.CreatedAt, _ = time.Parse(timeLayout, created)
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSource persists changes to an existing source.
func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET name = ?, url = ?, is_active = ? WHERE id = ?`,
		src.Name, src.URL, boolToInt(src.IsActive), src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// DeleteSource removes a capture source by its ID.
func (s *SQLite) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
