// Package store is the relational row-store client the services talk to. Callers only
// compose a table name, a column list and filter predicates; the client builds and binds the
// statements itself.
package store

import (
	"context"
	"fmt"
	"regexp"
)

// Row is one record keyed by column name.
type Row map[string]any

type Client interface {
	Select(ctx context.Context, table string, columns []string, filters []Filter, opts ...SelectOption) ([]Row, error)

	// Insert writes rows as-is.
	Insert(ctx context.Context, table string, rows []Row) (int64, error)

	// Upsert inserts rows or updates them in place when conflictKey already exists, in one
	// batched statement. Rows without a conflictKey value get a freshly generated identity.
	Upsert(ctx context.Context, table string, rows []Row, conflictKey string) (int64, error)

	// Delete removes the rows matching every filter. An empty filter list is rejected.
	Delete(ctx context.Context, table string, filters []Filter) error
}

type selectOptions struct {
	orderBy []order
	limit   int
}

type order struct {
	column string
	desc   bool
}

type SelectOption func(o *selectOptions)

func OrderBy(column string, desc bool) SelectOption {
	return func(o *selectOptions) {
		o.orderBy = append(o.orderBy, order{column: column, desc: desc})
	}
}

// Limit caps the number of returned rows. Zero means no limit.
func Limit(n int) SelectOption {
	return func(o *selectOptions) {
		o.limit = n
	}
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// quote validates an identifier and quotes it, so reserved words such as "order" are usable.
func quote(ident string) (string, error) {
	if !identRe.MatchString(ident) {
		return "", fmt.Errorf("store: invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}
