package types

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrStatusChanged    = errors.New("order status changed since selection")
	ErrQuoteUnavailable = errors.New("quote unavailable")
)

type Category string

const (
	CategoryIntraday  Category = "INTRADAY"
	CategoryOvernight Category = "OVERNIGHT"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status is the lifecycle state of an order. StatusUnset stands in for the
// null/empty statuses found on legacy records. Other legacy strings survive
// as unknown statuses; see ParseStatus.
type Status string

const (
	StatusUnset  Status = ""
	StatusOpen   Status = "OPEN"
	StatusHold   Status = "HOLD"
	StatusClosed Status = "CLOSED"
)

func (s Status) String() string {
	if s == StatusUnset {
		return "UNSET"
	}
	return string(s)
}

func ParseCategory(s string) Category {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTRADAY", "MIS":
		return CategoryIntraday
	case "OVERNIGHT", "NRML", "CNC":
		return CategoryOvernight
	}
	return Category(strings.ToUpper(strings.TrimSpace(s)))
}

func ParseSide(s string) Side {
	return Side(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseStatus maps stored status strings onto the known variants. Empty and
// "null" are StatusUnset. Any other value keeps its upper-cased text as an
// unknown status, which no candidate filter selects.
func ParseStatus(s string) Status {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "", "NULL":
		return StatusUnset
	case "OPEN":
		return StatusOpen
	case "HOLD":
		return StatusHold
	case "CLOSED":
		return StatusClosed
	}
	return Status(v)
}

// IsKnown reports whether s is StatusUnset or one of the lifecycle states.
func (s Status) IsKnown() bool {
	switch s {
	case StatusUnset, StatusOpen, StatusHold, StatusClosed:
		return true
	}
	return false
}

// Order is the normalized order record the engine works with. Nullable fields
// are only those the business allows to be absent.
type Order struct {
	ID         string `json:"id"`
	BrokerID   string `json:"broker_id"`
	CustomerID string `json:"customer_id"`

	Category        Category `json:"category"`
	Segment         string   `json:"segment"`
	Side            Side     `json:"side"`
	Product         string   `json:"product"`
	Symbol          string   `json:"symbol"`
	InstrumentToken string   `json:"instrument_token"`

	Lots           int                 `json:"lots"`
	LotSize        int                 `json:"lot_size"`
	Quantity       int                 `json:"quantity"`
	EntryPrice     decimal.Decimal     `json:"entry_price"`
	ExitPrice      decimal.NullDecimal `json:"exit_price"`
	LastPrice      decimal.Decimal     `json:"last_price"`
	JobbingPercent decimal.Decimal     `json:"jobbing_percent"`

	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	StopLoss decimal.NullDecimal `json:"stop_loss"`
	Target   decimal.NullDecimal `json:"target"`

	CameFrom Origin `json:"came_from"`
}

func (o Order) IsClosed() bool {
	return o.Status == StatusClosed && o.ExitPrice.Valid && o.ClosedAt != nil
}

// Filter selects candidate orders. Zero-valued fields do not constrain.
type Filter struct {
	ID                   string
	Category             Category
	Statuses             []Status
	SegmentPrefix        string
	ExcludeSegmentPrefix bool
}

func (f Filter) Matches(o Order) bool {
	if f.ID != "" && o.ID != f.ID {
		return false
	}
	if f.Category != "" && o.Category != f.Category {
		return false
	}
	if len(f.Statuses) > 0 && !HasStatus(f.Statuses, o.Status) {
		return false
	}
	if f.SegmentPrefix != "" {
		if HasSegmentPrefix(o.Segment, f.SegmentPrefix) == f.ExcludeSegmentPrefix {
			return false
		}
	}
	return true
}

func HasStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func HasSegmentPrefix(segment, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(segment)), strings.ToUpper(prefix))
}

// OrderUpdate is a single-order write. ExpectStatuses, when set, is checked
// against the persisted status in the same write.
type OrderUpdate struct {
	ExpectStatuses []Status
	Status         Status
	ExitPrice      decimal.Decimal
	ClosedAt       time.Time
	CameFrom       Origin
}
