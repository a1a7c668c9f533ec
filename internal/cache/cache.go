// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache implements the verdict cache: a durable, hash-keyed store of
// prior scan decisions, backed by Postgres via lib/pq.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/hashid"
)

// FileStatus is the stored disposition of a hash. Whitelisted and
// Blacklisted are operator-set and sticky: Upsert never overwrites them.
type FileStatus string

const (
	StatusGood        FileStatus = "Good"
	StatusBad         FileStatus = "Bad"
	StatusWhitelisted FileStatus = "Whitelisted"
	StatusBlacklisted FileStatus = "Blacklisted"
)

func (s FileStatus) sticky() bool {
	return s == StatusWhitelisted || s == StatusBlacklisted
}

// VerdictClass projects a FileStatus onto the coarser OK/Bad distinction
// seen by clients.
type VerdictClass string

const (
	ClassOK           VerdictClass = "OK"
	ClassBad          VerdictClass = "Bad"
	ClassInconclusive VerdictClass = "Inconclusive"
)

// Project maps a stored FileStatus to its client-visible VerdictClass.
func Project(s FileStatus) VerdictClass {
	switch s {
	case StatusGood, StatusWhitelisted:
		return ClassOK
	case StatusBad, StatusBlacklisted:
		return ClassBad
	default:
		return ClassInconclusive
	}
}

// CachedVerdict is one persisted row of the verdict cache.
type CachedVerdict struct {
	Hash        hashid.ID
	Status      FileStatus
	FirstSeen   time.Time
	LastSeen    time.Time
	LastUpdated time.Time
	RuleMatches []string
}

// Cache is the verdict cache's operation set.
type Cache interface {
	Get(ctx context.Context, hash hashid.ID) (*CachedVerdict, error)
	GetMany(ctx context.Context, hashes []hashid.ID) ([]CachedVerdict, error)
	Upsert(ctx context.Context, hash hashid.ID, status FileStatus, ruleMatches []string) error
	ListAll(ctx context.Context) ([]CachedVerdict, error)
}

// DB is a Postgres-backed Cache.
type DB struct {
	db *sql.DB
}

var _ Cache = (*DB)(nil)

// Open connects to the verdict-cache database at connString.
func Open(ctx context.Context, connString string) (_ *DB, err error) {
	defer derrors.Wrap(&err, "cache.Open")
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *DB) Close() error {
	return c.db.Close()
}

var passwordRegexp = regexp.MustCompile(`password=\S+`)

// RedactPassword removes credential material from a connection string
// before it is logged.
func RedactPassword(connString string) string {
	return passwordRegexp.ReplaceAllLiteralString(connString, "password=REDACTED")
}

// Get retrieves the CachedVerdict for hash, or nil if absent.
func (c *DB) Get(ctx context.Context, hash hashid.ID) (cv *CachedVerdict, err error) {
	defer derrors.Wrap(&err, "cache.Get(%s)", hash)
	rows, err := c.GetMany(ctx, []hashid.ID{hash})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetMany retrieves CachedVerdicts for any of hashes that are present.
// Result order is not guaranteed to match the input order.
func (c *DB) GetMany(ctx context.Context, hashes []hashid.ID) (cvs []CachedVerdict, err error) {
	defer derrors.Wrap(&err, "cache.GetMany(%d hashes)", len(hashes))
	if len(hashes) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hashes))
	for i, h := range hashes {
		ids[i] = string(h)
	}

	const query = `
		SELECT f.id, f.hash, f.first_seen, f.last_seen, f.last_updated, f.file_status,
		       coalesce(array_agg(m.rule_name) FILTER (WHERE m.rule_name IS NOT NULL), '{}')
		FROM files f
		LEFT JOIN file_rule_match m ON m.file_id = f.id
		WHERE f.hash = ANY($1)
		GROUP BY f.id`
	rows, err := c.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id          int64
			hash        string
			firstSeen   time.Time
			lastSeen    time.Time
			lastUpdated time.Time
			status      string
			matches     pq.StringArray
		)
		if err := rows.Scan(&id, &hash, &firstSeen, &lastSeen, &lastUpdated, &status, &matches); err != nil {
			return nil, err
		}
		cvs = append(cvs, CachedVerdict{
			Hash:        hashid.ID(hash),
			Status:      FileStatus(status),
			FirstSeen:   firstSeen,
			LastSeen:    lastSeen,
			LastUpdated: lastUpdated,
			RuleMatches: []string(matches),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cvs, nil
}

// Upsert creates or updates the verdict row for hash. If the hash is new,
// first_seen = last_seen = last_updated = now. If it exists and its current
// status is Whitelisted or Blacklisted, the status update is a no-op
// (operator-locked); last_seen is still refreshed. ruleMatches, when
// non-nil, replaces the stored rule-name associations.
func (c *DB) Upsert(ctx context.Context, hash hashid.ID, status FileStatus, ruleMatches []string) (err error) {
	defer derrors.Wrap(&err, "cache.Upsert(%s, %s)", hash, status)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	defer tx.Rollback()

	var existing string
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id, file_status FROM files WHERE hash = $1`, string(hash)).Scan(&id, &existing)
	switch {
	case err == sql.ErrNoRows:
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO files (hash, first_seen, last_seen, last_updated, file_status)
			VALUES ($1, now(), now(), now(), $2)
			RETURNING id`, string(hash), string(status)).Scan(&id); err != nil {
			return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
		}
	case err != nil:
		return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	default:
		newStatus := status
		if FileStatus(existing).sticky() {
			newStatus = FileStatus(existing)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE files SET last_seen = now(), last_updated = now(), file_status = $2
			WHERE id = $1`, id, string(newStatus)); err != nil {
			return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
		}
	}

	if ruleMatches != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_rule_match WHERE file_id = $1`, id); err != nil {
			return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
		}
		for _, name := range ruleMatches {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO file_rule_match (file_id, rule_name) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, id, name); err != nil {
				return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	return nil
}

// ListAll returns every cached verdict, in no particular order. Used by
// administrative listings and FindUnknown scans.
func (c *DB) ListAll(ctx context.Context) (cvs []CachedVerdict, err error) {
	defer derrors.Wrap(&err, "cache.ListAll")
	const query = `
		SELECT f.id, f.hash, f.first_seen, f.last_seen, f.last_updated, f.file_status,
		       coalesce(array_agg(m.rule_name) FILTER (WHERE m.rule_name IS NOT NULL), '{}')
		FROM files f
		LEFT JOIN file_rule_match m ON m.file_id = f.id
		GROUP BY f.id`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          int64
			hash        string
			firstSeen   time.Time
			lastSeen    time.Time
			lastUpdated time.Time
			status      string
			matches     pq.StringArray
		)
		if err := rows.Scan(&id, &hash, &firstSeen, &lastSeen, &lastUpdated, &status, &matches); err != nil {
			return nil, err
		}
		cvs = append(cvs, CachedVerdict{
			Hash:        hashid.ID(hash),
			Status:      FileStatus(status),
			FirstSeen:   firstSeen,
			LastSeen:    lastSeen,
			LastUpdated: lastUpdated,
			RuleMatches: []string(matches),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cvs, nil
}
