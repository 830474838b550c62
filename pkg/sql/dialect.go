package sql

import "fmt"

// Dialect renders dialect-specific SQL fragments for compiled plans.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMSSQL    Dialect = "mssql"
)

// IsValidDialect checks if the given dialect is supported.
func IsValidDialect(d Dialect) bool {
	return d == DialectPostgres || d == DialectMSSQL
}

// Placeholder returns the positional parameter placeholder for the 1-based
// parameter index: $1 for PostgreSQL, @p1 for SQL Server.
func (d Dialect) Placeholder(index int) string {
	if d == DialectMSSQL {
		return fmt.Sprintf("@p%d", index)
	}
	return fmt.Sprintf("$%d", index)
}

// QuoteIdentifier quotes a table or column identifier. Identifiers come from
// the validated schema descriptor, never from user input, but quoting keeps
// reserved words safe.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == DialectMSSQL {
		return "[" + name + "]"
	}
	return `"` + name + `"`
}
