package relational

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// dialect captures what differs between the supported SQL engines.
type dialect struct {
	name   string // migrations subdirectory
	driver string // database/sql driver name

	// numbered reports whether placeholders are $1, $2... instead of ?.
	numbered bool

	isUniqueViolation func(err error) bool
}

var (
	sqliteDialect = dialect{
		name:              "sqlite",
		driver:            "sqlite",
		isUniqueViolation: isSQLiteUniqueViolation,
	}
	postgresDialect = dialect{
		name:              "postgres",
		driver:            "postgres",
		numbered:          true,
		isUniqueViolation: isPostgresUniqueViolation,
	}
)

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
