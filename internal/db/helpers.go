package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Timestamps are stored as RFC3339 UTC text. Second precision keeps the
// stored strings lexicographically ordered, which keyset pagination
// relies on; the (created_at, id) tie-break covers same-second rows.
func fmtTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Embeddings are persisted as a JSON float array; SQLite has no native
// vector type and the column is never queried, only carried.
func encodeVector(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func decodeVector(s string) []float32 {
	if s == "" || s == "[]" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}
