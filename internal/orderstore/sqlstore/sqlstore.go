// Package sqlstore reads and closes orders in the back-office's SQL orders
// table through gorm.
package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/orderstore"
	"squareoff-engine/internal/types"
)

var _ interfaces.OrderStore = (*Store)(nil)

type Store struct {
	db    *gorm.DB
	table string
}

func Open(dsn, table string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db, table), nil
}

func New(db *gorm.DB, table string) *Store {
	if table == "" {
		table = "orders"
	}
	return &Store{db: db, table: table}
}

// Migrate adds any missing columns. It never drops or rewrites existing ones.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&orderstore.Record{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindCandidates(ctx context.Context, filter types.Filter, limit int) ([]types.Order, error) {
	query := s.db.WithContext(ctx).Table(s.table)
	for _, c := range filterClauses(filter) {
		query = query.Where(c.sql, c.args...)
	}
	query = query.Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []orderstore.Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	orders, bad := orderstore.Select(records, filter, limit)
	if len(bad) > 0 {
		logger.Warn(ctx, "Skipping unreadable order records", "ids", bad)
	}
	return orders, nil
}

// UpdateOrder applies the update only while the row still has one of the
// expected statuses. The conditional UPDATE is the compare-and-set; the
// follow-up count only tells a missing row from a changed one.
func (s *Store) UpdateOrder(ctx context.Context, id string, update types.OrderUpdate) error {
	cols := updateColumns(update)
	if len(cols) == 0 {
		return nil
	}
	db := s.db.WithContext(ctx)
	q := db.Table(s.table).Where("id = ?", id)
	if len(update.ExpectStatuses) > 0 {
		c := statusClause(update.ExpectStatuses)
		q = q.Where(c.sql, c.args...)
	}
	result := q.Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("update order %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := db.Table(s.table).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, types.ErrNotFound)
	}
	return fmt.Errorf("order %s: %w", id, types.ErrStatusChanged)
}

type clause struct {
	sql  string
	args []any
}

var categoryAliases = map[types.Category][]string{
	types.CategoryIntraday:  {"INTRADAY", "MIS"},
	types.CategoryOvernight: {"OVERNIGHT", "NRML", "CNC"},
}

func filterClauses(f types.Filter) []clause {
	var out []clause
	if f.ID != "" {
		out = append(out, clause{"id = ?", []any{f.ID}})
	}
	if f.Category != "" {
		names, ok := categoryAliases[f.Category]
		if !ok {
			names = []string{string(f.Category)}
		}
		out = append(out, clause{"UPPER(TRIM(order_category)) IN ?", []any{names}})
	}
	if len(f.Statuses) > 0 {
		out = append(out, statusClause(f.Statuses))
	}
	if f.SegmentPrefix != "" {
		pattern := escapeLike(strings.ToUpper(f.SegmentPrefix)) + "%"
		if f.ExcludeSegmentPrefix {
			out = append(out, clause{"(segment IS NULL OR UPPER(TRIM(segment)) NOT LIKE ?)", []any{pattern}})
		} else {
			out = append(out, clause{"UPPER(TRIM(segment)) LIKE ?", []any{pattern}})
		}
	}
	return out
}

// statusClause mirrors types.ParseStatus: null, blank and "null" count as
// unset. Any other unrecognised status matches nothing.
func statusClause(statuses []types.Status) clause {
	var named []string
	unset := false
	for _, s := range statuses {
		if s == types.StatusUnset {
			unset = true
			continue
		}
		named = append(named, string(s))
	}
	const unsetSQL = "order_status IS NULL OR TRIM(order_status) = '' OR UPPER(TRIM(order_status)) = 'NULL'"
	switch {
	case unset && len(named) > 0:
		return clause{"(UPPER(TRIM(order_status)) IN ? OR " + unsetSQL + ")", []any{named}}
	case unset:
		return clause{"(" + unsetSQL + ")", nil}
	default:
		return clause{"UPPER(TRIM(order_status)) IN ?", []any{named}}
	}
}

func updateColumns(u types.OrderUpdate) map[string]any {
	cols := map[string]any{}
	if u.Status != types.StatusUnset {
		cols["order_status"] = string(u.Status)
	}
	if !u.ExitPrice.IsZero() || u.Status == types.StatusClosed {
		cols["closed_ltp"] = u.ExitPrice
	}
	if !u.ClosedAt.IsZero() {
		cols["closed_at"] = u.ClosedAt
	}
	if c := u.CameFrom.String(); c != "" {
		cols["came_from"] = c
	}
	return cols
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
