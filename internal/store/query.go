package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/types"
)

// whereBuilder accumulates optional equality conditions with positional
// placeholders.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) eq(column string, value string) {
	if value == "" {
		return
	}
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// summaryColumns receives the four joined account columns of one reference.
type summaryColumns struct {
	name, email, phone, address sql.NullString
}

func (s *summaryColumns) dest() []any {
	return []any{&s.name, &s.email, &s.phone, &s.address}
}

// summary returns nil when the reference is unset or the joined row is gone.
func (s summaryColumns) summary(id *uuid.UUID) *types.AccountSummary {
	if id == nil || !s.name.Valid {
		return nil
	}
	return &types.AccountSummary{
		ID:      *id,
		Name:    s.name.String,
		Email:   s.email.String,
		Phone:   s.phone.String,
		Address: s.address.String,
	}
}

func nullableUUID(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nonNilImages(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
