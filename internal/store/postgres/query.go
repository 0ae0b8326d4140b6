package postgres

import (
	"fmt"
	"strings"
	"time"
)

// where accumulates positional filter clauses.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) window(col string, since, until *time.Time) {
	if since != nil {
		w.add(col+" >= $%d", *since)
	}
	if until != nil {
		w.add(col+" <= $%d", *until)
	}
}

// build appends the WHERE clause, order and pagination to base.
func (w *where) build(base, order string, limit, offset int) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if len(w.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(w.conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	args := w.args
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
