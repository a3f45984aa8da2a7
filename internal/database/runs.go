package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/SentimentCrawler/internal/aggregate"
	"github.com/TobiSchelling/SentimentCrawler/internal/classify"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

var runColumns = []string{
	"r.id", "r.query", "r.language", "r.source", "r.scorer",
	"r.positive", "r.neutral", "r.negative",
	"(SELECT COUNT(*) FROM run_dropped d WHERE d.run_id = r.id)",
	"r.duration_ms", "r.started_at", "r.created_at",
}

// SaveRun stores a finished run with its post table and dropped posts.
// Returns the new run ID.
func (db *DB) SaveRun(meta RunMeta, report aggregate.Report, dropped []classify.Dropped) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	counts := report.Summary.Counts
	query, args, err := sq.Insert("runs").
		Columns("query", "language", "source", "scorer", "positive", "neutral", "negative", "duration_ms", "started_at").
		Values(meta.Query, meta.Language, meta.Source, meta.Scorer,
			counts[posts.Positive], counts[posts.Neutral], counts[posts.Negative],
			meta.Duration.Milliseconds(), FormatTimestamp(meta.StartedAt)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building run insert: %w", err)
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(report.Posts) > 0 {
		ins := sq.Insert("run_posts").Columns("run_id", "position", "raw_text", "normalized_text", "label")
		for i, p := range report.Posts {
			ins = ins.Values(runID, i, p.RawText, p.NormalizedText, string(p.Label))
		}
		if err := execBuilder(tx, ins); err != nil {
			return 0, fmt.Errorf("inserting run posts: %w", err)
		}
	}

	if len(dropped) > 0 {
		ins := sq.Insert("run_dropped").Columns("run_id", "position", "raw_text", "reason")
		for _, d := range dropped {
			ins = ins.Values(runID, d.Index, d.Post.RawText, dropReason(d))
		}
		if err := execBuilder(tx, ins); err != nil {
			return 0, fmt.Errorf("inserting dropped posts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// GetRun returns a run with its posts, or nil if it does not exist.
func (db *DB) GetRun(id int64) (*RunDetail, error) {
	query, args, err := sq.Select(runColumns...).From("runs r").Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	run, err := scanRun(db.conn.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d := &RunDetail{Run: *run}
	if d.Posts, err = db.getRunPosts(id); err != nil {
		return nil, err
	}
	if d.Dropped, err = db.getRunDropped(id); err != nil {
		return nil, err
	}
	return d, nil
}

// GetRecentRuns returns the latest runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	b := sq.Select(runColumns...).From("runs r").OrderBy("r.started_at DESC", "r.id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return db.queryRuns(b)
}

// GetRunsForQuery returns the runs for one search term, newest first.
func (db *DB) GetRunsForQuery(q string, limit int) ([]Run, error) {
	b := sq.Select(runColumns...).From("runs r").
		Where(sq.Eq{"r.query": q}).
		OrderBy("r.started_at DESC", "r.id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return db.queryRuns(b)
}

// DeleteRun removes a run and its posts. Returns false if it did not exist.
func (db *DB) DeleteRun(id int64) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, table := range []string{"run_posts", "run_dropped"} {
		query, args, err := sq.Delete(table).Where(sq.Eq{"run_id": id}).ToSql()
		if err != nil {
			return false, err
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return false, err
		}
	}

	query, args, err := sq.Delete("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	query, args, err := sq.Select(
		"COUNT(*)",
		"COUNT(DISTINCT query)",
		"COALESCE(SUM(positive), 0)",
		"COALESCE(SUM(neutral), 0)",
		"COALESCE(SUM(negative), 0)",
		"MAX(started_at)",
	).From("runs").ToSql()
	if err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow(query, args...).Scan(
		&s.TotalRuns, &s.DistinctQueries, &s.Positive, &s.Neutral, &s.Negative, &s.LastRunAt,
	); err != nil {
		return nil, err
	}
	s.TotalPosts = s.Positive + s.Neutral + s.Negative

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM run_dropped").Scan(&s.DroppedPosts); err != nil {
		return nil, err
	}
	return s, nil
}

func (db *DB) queryRuns(b sq.SelectBuilder) ([]Run, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (db *DB) getRunPosts(runID int64) ([]RunPost, error) {
	query, args, err := sq.Select("position", "raw_text", "normalized_text", "label").
		From("run_posts").Where(sq.Eq{"run_id": runID}).OrderBy("position").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunPost
	for rows.Next() {
		var p RunPost
		var label string
		if err := rows.Scan(&p.Position, &p.RawText, &p.NormalizedText, &label); err != nil {
			return nil, err
		}
		p.Label = posts.Label(label)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) getRunDropped(runID int64) ([]DroppedPost, error) {
	query, args, err := sq.Select("position", "raw_text", "reason").
		From("run_dropped").Where(sq.Eq{"run_id": runID}).OrderBy("position").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DroppedPost
	for rows.Next() {
		var d DroppedPost
		if err := rows.Scan(&d.Position, &d.RawText, &d.Reason); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.Query, &r.Language, &r.Source, &r.Scorer,
		&r.Positive, &r.Neutral, &r.Negative, &r.Dropped,
		&r.DurationMS, &r.StartedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func execBuilder(tx *sql.Tx, b sq.InsertBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(query, args...)
	return err
}

func dropReason(d classify.Dropped) string {
	if d.Err == nil {
		return "unknown"
	}
	if d.Err.Err != nil {
		return d.Err.Err.Error()
	}
	return d.Err.Error()
}

// timestampLayout is how run times are stored; it sorts lexically.
const timestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in UTC for storage.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
