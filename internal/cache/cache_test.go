// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9

package cache

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/dreamhost/dirk/internal/hashid"
)

// dbInfo is the -db flag used to test against a local database. Mirrors the
// teacher's pkgsitedb test harness: when empty, the test is skipped rather
// than attempting to stand up a database itself.
var dbInfo = flag.String("db", "",
	"Postgres connection string for testing, e.g. 'postgres://user@127.0.0.1/dirk_test?sslmode=disable'")

func openTestDB(t *testing.T) *DB {
	t.Helper()
	if *dbInfo == "" {
		t.Skip("missing -db")
	}
	ctx := context.Background()
	db, err := Open(ctx, *dbInfo)
	if err != nil {
		t.Fatal(err)
	}
	schema, err := os.ReadFile("schema.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := hashid.Of([]byte("dirk-cache-test-upsert"))
	if err := db.Upsert(ctx, h, StatusBad, []string{"rule-a"}); err != nil {
		t.Fatal(err)
	}
	cv, err := db.Get(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if cv == nil {
		t.Fatal("Get returned nil after Upsert")
	}
	if cv.Status != StatusBad {
		t.Errorf("Status = %q, want Bad", cv.Status)
	}
	if len(cv.RuleMatches) != 1 || cv.RuleMatches[0] != "rule-a" {
		t.Errorf("RuleMatches = %v, want [rule-a]", cv.RuleMatches)
	}
}

func TestUpsertStickyStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := hashid.Of([]byte("dirk-cache-test-sticky"))
	if err := db.Upsert(ctx, h, StatusWhitelisted, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(ctx, h, StatusBad, nil); err != nil {
		t.Fatal(err)
	}
	cv, err := db.Get(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if cv.Status != StatusWhitelisted {
		t.Errorf("Status = %q, want sticky Whitelisted to survive Upsert(Bad)", cv.Status)
	}
}

func TestGetManyMissing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cvs, err := db.GetMany(ctx, []hashid.ID{hashid.Of([]byte("never-seen-before"))})
	if err != nil {
		t.Fatal(err)
	}
	if len(cvs) != 0 {
		t.Errorf("GetMany(unknown hash) = %v, want empty", cvs)
	}
}

func TestProject(t *testing.T) {
	cases := []struct {
		status FileStatus
		want   VerdictClass
	}{
		{StatusGood, ClassOK},
		{StatusWhitelisted, ClassOK},
		{StatusBad, ClassBad},
		{StatusBlacklisted, ClassBad},
	}
	for _, c := range cases {
		if got := Project(c.status); got != c.want {
			t.Errorf("Project(%s) = %s, want %s", c.status, got, c.want)
		}
	}
}
