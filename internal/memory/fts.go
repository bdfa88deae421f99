package memory

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ftsIndex is the SQLite FTS5 shadow index: an accelerator over the
// file-backed entries, never the source of truth. It narrows a query down
// to candidate rows; scoring is always recomputed with scoreEntry so the
// index can be dropped and rebuilt from the files at any time without
// changing search results.
type ftsIndex struct {
	db *sql.DB
}

func openFTS(path string) (*ftsIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	const schema = `CREATE VIRTUAL TABLE IF NOT EXISTS entries USING fts5(
		key, value, tags, created UNINDEXED, updated UNINDEXED
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &ftsIndex{db: db}, nil
}

func (f *ftsIndex) Close() error {
	return f.db.Close()
}

func (f *ftsIndex) upsert(e *Entry) {
	f.db.Exec(`DELETE FROM entries WHERE key = ?`, e.Key)
	f.db.Exec(`INSERT INTO entries (key, value, tags, created, updated) VALUES (?, ?, ?, ?, ?)`,
		e.Key, e.Value, strings.Join(e.Tags, " "), e.Created.UnixMilli(), e.Updated.UnixMilli())
}

func (f *ftsIndex) remove(key string) {
	f.db.Exec(`DELETE FROM entries WHERE key = ?`, key)
}

func (f *ftsIndex) rebuild(entries []*Entry) {
	tx, err := f.db.Begin()
	if err != nil {
		return
	}
	tx.Exec(`DELETE FROM entries`)
	for _, e := range entries {
		tx.Exec(`INSERT INTO entries (key, value, tags, created, updated) VALUES (?, ?, ?, ?, ?)`,
			e.Key, e.Value, strings.Join(e.Tags, " "), e.Created.UnixMilli(), e.Updated.UnixMilli())
	}
	tx.Commit()
}

// searchText returns candidate rows matching any of queryTokens, rescored
// with scoreEntry for exact agreement with the fallback path. ok is false
// when the index query itself fails, signalling the caller to fall back
// to a full directory scan.
func (f *ftsIndex) searchText(queryTokens []string, limit int) (results []ScoredEntry, ok bool) {
	matchParts := make([]string, len(queryTokens))
	for i, t := range queryTokens {
		matchParts[i] = fmt.Sprintf(`"%s"`, strings.ReplaceAll(t, `"`, ``))
	}
	match := strings.Join(matchParts, " OR ")

	rows, err := f.db.Query(`SELECT key, value, tags, created, updated FROM entries WHERE entries MATCH ?`, match)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	var scored []ScoredEntry
	for rows.Next() {
		var key, value, tagsJoined string
		var createdMs, updatedMs int64
		if err := rows.Scan(&key, &value, &tagsJoined, &createdMs, &updatedMs); err != nil {
			return nil, false
		}
		var tags []string
		if tagsJoined != "" {
			tags = strings.Fields(tagsJoined)
		}
		e := &Entry{
			Key:     key,
			Value:   value,
			Tags:    tags,
			Created: time.UnixMilli(createdMs),
			Updated: time.UnixMilli(updatedMs),
		}
		score := scoreEntry(e, queryTokens)
		if score > 0 {
			scored = append(scored, ScoredEntry{Entry: e, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.Key < scored[j].Entry.Key
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, true
}
