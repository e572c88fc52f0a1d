package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

type Operator string

const (
	OpEq     Operator = "="
	OpIn     Operator = "IN"
	OpGte    Operator = ">="
	OpLte    Operator = "<="
	OpIsNull Operator = "IS NULL"
)

// Filter is a single predicate on a column. Filters passed together are joined with AND.
type Filter struct {
	Column string
	Op     Operator
	Values []any
}

func Eq(column string, v any) Filter {
	return Filter{Column: column, Op: OpEq, Values: []any{bindable(v)}}
}

// In matches rows whose column is one of vs. An empty vs matches nothing.
func In[T any](column string, vs []T) Filter {
	values := make([]any, 0, len(vs))
	for _, v := range vs {
		values = append(values, bindable(v))
	}
	return Filter{Column: column, Op: OpIn, Values: values}
}

func Gte(column string, v any) Filter {
	return Filter{Column: column, Op: OpGte, Values: []any{bindable(v)}}
}

func Lte(column string, v any) Filter {
	return Filter{Column: column, Op: OpLte, Values: []any{bindable(v)}}
}

func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

// bindable normalizes values before binding: pointers are dereferenced and times are stored in
// UTC so that their text form compares correctly on sqlite.
func bindable(v any) any {
	if dv, err := driver.DefaultParameterConverter.ConvertValue(v); err == nil {
		v = dv
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

// where renders the filters as a WHERE clause. Placeholders continue from next.
func where(filters []Filter, next int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var (
		conds = make([]string, 0, len(filters))
		args  []any
	)

	for _, f := range filters {
		col, err := quote(f.Column)
		if err != nil {
			return "", nil, err
		}

		switch f.Op {
		case OpEq, OpGte, OpLte:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("store: filter %s %s expects 1 value, got %d", f.Column, f.Op, len(f.Values))
			}
			conds = append(conds, fmt.Sprintf("%s %s $%d", col, f.Op, next))
			args = append(args, f.Values[0])
			next++

		case OpIn:
			if len(f.Values) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			ph := make([]string, 0, len(f.Values))
			for _, v := range f.Values {
				ph = append(ph, fmt.Sprintf("$%d", next))
				args = append(args, v)
				next++
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))

		case OpIsNull:
			conds = append(conds, col+" IS NULL")

		default:
			return "", nil, fmt.Errorf("store: unsupported operator %q", f.Op)
		}
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}
