package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

type HistoryPoint struct {
	Week     int
	Pre      float64
	Post     float64
	Delta    float64
	Contexts string
}

// TraitSeries returns one trait of one coach ordered by week.
func (s *SQLiteIndex) TraitSeries(ctx context.Context, runID, coachID, trait string) ([]HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week,pre,post,delta,contexts FROM trait_history WHERE run_id=? AND coach_id=? AND trait=? ORDER BY week`,
		runID, coachID, trait)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Week, &p.Pre, &p.Post, &p.Delta, &p.Contexts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type EventCount struct {
	EventID string
	Count   int
	// Impact is the summed importance weight of the firings.
	Impact float64
}

// EventCounts returns how often each event fired in a run, most frequent first.
func (s *SQLiteIndex) EventCounts(ctx context.Context, runID string) ([]EventCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, COUNT(*), SUM(weight) FROM events WHERE run_id=? GROUP BY event_id ORDER BY COUNT(*) DESC, event_id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventCount
	for rows.Next() {
		var c EventCount
		if err := rows.Scan(&c.EventID, &c.Count, &c.Impact); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently recorded run, or ok=false if none.
func (s *SQLiteIndex) LatestRun(ctx context.Context) (r Run, ok bool, err error) {
	var seed int64
	err = s.db.QueryRowContext(ctx,
		`SELECT run_id,seed,start_week,weeks,batches,coaches FROM runs ORDER BY recorded_at DESC LIMIT 1`,
	).Scan(&r.ID, &seed, &r.StartWeek, &r.Weeks, &r.Batches, &r.Coaches)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	r.Seed = uint64(seed)
	return r, true, nil
}

// CatalogDigest returns the digest last stored for a catalog file; ok is
// false when the file was never indexed.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}
