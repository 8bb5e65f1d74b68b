package repo

import (
	"regexp"
	"time"

	"github.com/potholewatch/server/internal/db"
)

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites postgres $N placeholders into SQLite's ?N form.
func rebind(dialect db.Dialect, query string) string {
	if dialect != db.SQLite {
		return query
	}
	return dollarParam.ReplaceAllString(query, "?$1")
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}
