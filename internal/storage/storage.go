// Package storage holds the PostgreSQL repositories for templates, the
// notification ledger, orders, products and customers.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func toNullInt64(p *int64) sql.NullInt64 {
	if p == nil || *p == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func toNullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// conditions collects AND-ed WHERE terms with numbered placeholders.
type conditions struct {
	terms []string
	args  []interface{}
}

// add appends term, replacing its single "?" with the next placeholder.
func (c *conditions) add(term string, arg interface{}) {
	c.args = append(c.args, arg)
	c.terms = append(c.terms, strings.Replace(term, "?", "$"+strconv.Itoa(len(c.args)), 1))
}

// createdBetween adds the usual [from, to) range on created_at.
func (c *conditions) createdBetween(from, to *time.Time) {
	if from != nil {
		c.add("created_at >= ?", *from)
	}
	if to != nil {
		c.add("created_at < ?", *to)
	}
}

func (c *conditions) where() string {
	if len(c.terms) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.terms, " AND ")
}

// next returns the placeholder for an argument appended after the terms.
func (c *conditions) next(arg interface{}) string {
	c.args = append(c.args, arg)
	return "$" + strconv.Itoa(len(c.args))
}
