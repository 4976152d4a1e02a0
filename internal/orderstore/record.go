// Package orderstore holds the persisted order shape shared by the store
// adapters and the rules for turning it into a strict types.Order.
package orderstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"squareoff-engine/internal/types"
)

var ErrInvalidRecord = errors.New("invalid order record")

// Record is an order as the back-office stores it. Legacy rows may carry a
// null status, no quantity, or a free-form came_From tag.
type Record struct {
	ID              string              `json:"id" gorm:"column:id;primaryKey"`
	BrokerID        string              `json:"broker_id" gorm:"column:broker_id"`
	CustomerID      string              `json:"customer_id" gorm:"column:customer_id"`
	Category        string              `json:"order_category" gorm:"column:order_category"`
	Segment         *string             `json:"segment" gorm:"column:segment"`
	Side            string              `json:"side" gorm:"column:side"`
	Product         string              `json:"product" gorm:"column:product"`
	Symbol          string              `json:"symbol" gorm:"column:symbol"`
	InstrumentToken string              `json:"instrument_token" gorm:"column:instrument_token"`
	Lots            int                 `json:"lots" gorm:"column:lots"`
	LotSize         int                 `json:"lot_size" gorm:"column:lot_size"`
	Quantity        int                 `json:"quantity" gorm:"column:quantity"`
	Price           decimal.Decimal     `json:"price" gorm:"column:price;type:numeric"`
	ClosedLTP       decimal.NullDecimal `json:"closed_ltp" gorm:"column:closed_ltp;type:numeric"`
	LTP             decimal.Decimal     `json:"ltp" gorm:"column:ltp;type:numeric"`
	JobbingPrice    decimal.Decimal     `json:"jobbin_price" gorm:"column:jobbin_price;type:numeric"`
	Status          *string             `json:"order_status" gorm:"column:order_status"`
	CreatedAt       time.Time           `json:"createdAt" gorm:"column:created_at"`
	ClosedAt        *time.Time          `json:"closed_at" gorm:"column:closed_at"`
	Expiry          *time.Time          `json:"expiry" gorm:"column:expiry"`
	StopLoss        decimal.NullDecimal `json:"stop_loss" gorm:"column:stop_loss;type:numeric"`
	Target          decimal.NullDecimal `json:"target" gorm:"column:target;type:numeric"`
	CameFrom        *string             `json:"came_From" gorm:"column:came_from"`
}

// Normalize converts a stored record into the strict order the engine works
// with. Quantity is derived from lots and lot size whenever both are known.
func Normalize(r Record) (types.Order, error) {
	if strings.TrimSpace(r.ID) == "" {
		return types.Order{}, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	side := types.ParseSide(r.Side)
	if side != types.SideBuy && side != types.SideSell {
		return types.Order{}, fmt.Errorf("%w: order %s has side %q", ErrInvalidRecord, r.ID, r.Side)
	}
	category := types.ParseCategory(r.Category)
	if category != types.CategoryIntraday && category != types.CategoryOvernight {
		return types.Order{}, fmt.Errorf("%w: order %s has category %q", ErrInvalidRecord, r.ID, r.Category)
	}

	lots, lotSize, qty := r.Lots, r.LotSize, r.Quantity
	switch {
	case lots > 0 && lotSize > 0:
		qty = lots * lotSize
	case qty > 0 && lotSize > 0 && qty%lotSize == 0:
		lots = qty / lotSize
	case qty > 0:
		lots, lotSize = qty, 1
	default:
		return types.Order{}, fmt.Errorf("%w: order %s has no usable quantity", ErrInvalidRecord, r.ID)
	}

	o := types.Order{
		ID:              r.ID,
		BrokerID:        r.BrokerID,
		CustomerID:      r.CustomerID,
		Category:        category,
		Segment:         deref(r.Segment),
		Side:            side,
		Product:         r.Product,
		Symbol:          r.Symbol,
		InstrumentToken: r.InstrumentToken,
		Lots:            lots,
		LotSize:         lotSize,
		Quantity:        qty,
		EntryPrice:      r.Price,
		ExitPrice:       r.ClosedLTP,
		LastPrice:       r.LTP,
		JobbingPercent:  r.JobbingPrice,
		Status:          types.ParseStatus(deref(r.Status)),
		CreatedAt:       r.CreatedAt,
		ClosedAt:        r.ClosedAt,
		ExpiresAt:       r.Expiry,
		StopLoss:        r.StopLoss,
		Target:          r.Target,
		CameFrom:        types.ParseOrigin(deref(r.CameFrom)),
	}
	return o, nil
}

// FromOrder is the inverse of Normalize, used when seeding stores.
func FromOrder(o types.Order) Record {
	r := Record{
		ID:              o.ID,
		BrokerID:        o.BrokerID,
		CustomerID:      o.CustomerID,
		Category:        string(o.Category),
		Side:            string(o.Side),
		Product:         o.Product,
		Symbol:          o.Symbol,
		InstrumentToken: o.InstrumentToken,
		Lots:            o.Lots,
		LotSize:         o.LotSize,
		Quantity:        o.Quantity,
		Price:           o.EntryPrice,
		ClosedLTP:       o.ExitPrice,
		LTP:             o.LastPrice,
		JobbingPrice:    o.JobbingPercent,
		CreatedAt:       o.CreatedAt,
		ClosedAt:        o.ClosedAt,
		Expiry:          o.ExpiresAt,
		StopLoss:        o.StopLoss,
		Target:          o.Target,
	}
	if o.Segment != "" {
		r.Segment = ptr(o.Segment)
	}
	if o.Status != types.StatusUnset {
		r.Status = ptr(string(o.Status))
	}
	if c := o.CameFrom.String(); c != "" {
		r.CameFrom = ptr(c)
	}
	return r
}

// Validate checks the fields a new order must carry before it is stored.
func Validate(o types.Order) error {
	if _, err := Normalize(FromOrder(o)); err != nil {
		return err
	}
	if o.EntryPrice.IsNegative() {
		return fmt.Errorf("%w: order %s has negative price", ErrInvalidRecord, o.ID)
	}
	return types.ValidateRiskLevels(o.Side, o.EntryPrice, o.StopLoss, o.Target)
}

// ApplyUpdate performs the compare-and-set write on a record in place.
func ApplyUpdate(r *Record, u types.OrderUpdate) error {
	current := types.ParseStatus(deref(r.Status))
	if len(u.ExpectStatuses) > 0 && !types.HasStatus(u.ExpectStatuses, current) {
		return fmt.Errorf("order %s is %s: %w", r.ID, current, types.ErrStatusChanged)
	}
	if u.Status != types.StatusUnset {
		r.Status = ptr(string(u.Status))
	}
	if !u.ExitPrice.IsZero() || u.Status == types.StatusClosed {
		r.ClosedLTP = decimal.NewNullDecimal(u.ExitPrice)
	}
	if !u.ClosedAt.IsZero() {
		closed := u.ClosedAt
		r.ClosedAt = &closed
	}
	if c := u.CameFrom.String(); c != "" {
		r.CameFrom = ptr(c)
	}
	return nil
}

// Select normalizes and filters records, oldest first, skipping records that
// cannot be normalized. Skipped ids are returned for the caller to log.
func Select(records []Record, f types.Filter, limit int) ([]types.Order, []string) {
	out := make([]types.Order, 0, len(records))
	var bad []string
	for _, r := range records {
		o, err := Normalize(r)
		if err != nil {
			bad = append(bad, r.ID)
			continue
		}
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, bad
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string { return &s }
