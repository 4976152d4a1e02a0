package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusOpen, ParseStatus("open"))
	assert.Equal(t, StatusHold, ParseStatus(" HOLD "))
	assert.Equal(t, StatusClosed, ParseStatus("CLOSED"))
	assert.Equal(t, StatusUnset, ParseStatus(""))
	assert.Equal(t, StatusUnset, ParseStatus("null"))
	assert.Equal(t, StatusUnset, ParseStatus("   "))
	assert.Equal(t, "UNSET", StatusUnset.String())

	cancelled := ParseStatus(" cancelled")
	assert.Equal(t, Status("CANCELLED"), cancelled)
	assert.False(t, cancelled.IsKnown())
	assert.True(t, StatusUnset.IsKnown())
	assert.True(t, StatusHold.IsKnown())
}

func TestUnknownStatusMatchesNoSweep(t *testing.T) {
	o := Order{ID: "x", Category: CategoryOvernight, Status: ParseStatus("REJECTED")}
	assert.False(t, Filter{Statuses: []Status{StatusUnset, StatusOpen, StatusHold}}.Matches(o))
	assert.False(t, Filter{Statuses: []Status{StatusUnset}}.Matches(o))
	assert.True(t, Filter{Category: CategoryOvernight}.Matches(o))
}

func TestFilterMatches(t *testing.T) {
	o := Order{ID: "o1", Category: CategoryIntraday, Status: StatusOpen, Segment: "MCX-FUT"}

	assert.True(t, Filter{}.Matches(o))
	assert.True(t, Filter{ID: "o1"}.Matches(o))
	assert.False(t, Filter{ID: "o2"}.Matches(o))
	assert.False(t, Filter{Category: CategoryOvernight}.Matches(o))
	assert.True(t, Filter{Statuses: []Status{StatusOpen, StatusHold}}.Matches(o))
	assert.False(t, Filter{Statuses: []Status{StatusHold}}.Matches(o))

	assert.True(t, Filter{SegmentPrefix: "mcx"}.Matches(o))
	assert.False(t, Filter{SegmentPrefix: "MCX", ExcludeSegmentPrefix: true}.Matches(o))

	eq := Order{Segment: "NSE-EQ"}
	assert.False(t, Filter{SegmentPrefix: "MCX"}.Matches(eq))
	assert.True(t, Filter{SegmentPrefix: "MCX", ExcludeSegmentPrefix: true}.Matches(eq))
}

func TestFilterIncludesUnsetStatus(t *testing.T) {
	f := Filter{Category: CategoryOvernight, Statuses: []Status{StatusUnset, StatusOpen, StatusHold}}
	assert.True(t, f.Matches(Order{Category: CategoryOvernight}))
	assert.False(t, f.Matches(Order{Category: CategoryOvernight, Status: StatusClosed}))
}

func TestOriginRoundTripKeepsLegacyTags(t *testing.T) {
	assert.Equal(t, OriginHold, ParseOrigin("hold").Kind)
	assert.Equal(t, "AutoSquareoff", NewOrigin(OriginIntradaySquareoff).String())

	legacy := ParseOrigin("ui_closed_order_reopen")
	assert.Equal(t, OriginUnknown, legacy.Kind)
	assert.Equal(t, "ui_closed_order_reopen", legacy.String())

	b, err := json.Marshal(legacy)
	require.NoError(t, err)
	var back Origin
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, legacy, back)

	require.NoError(t, json.Unmarshal([]byte("null"), &back))
	assert.Equal(t, Origin{}, back)
}

func TestOriginAllowsBrokerEdit(t *testing.T) {
	assert.True(t, NewOrigin(OriginOpen).AllowsBrokerEdit())
	assert.False(t, NewOrigin(OriginHold).AllowsBrokerEdit())
	assert.False(t, NewOrigin(OriginOvernight).AllowsBrokerEdit())
}

func TestValidateRiskLevels(t *testing.T) {
	price := decimal.NewFromInt(100)
	lvl := func(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }
	none := decimal.NullDecimal{}

	assert.NoError(t, ValidateRiskLevels(SideBuy, price, lvl(95), lvl(110)))
	assert.Error(t, ValidateRiskLevels(SideBuy, price, lvl(105), none))
	assert.Error(t, ValidateRiskLevels(SideBuy, price, none, lvl(90)))

	assert.NoError(t, ValidateRiskLevels(SideSell, price, lvl(105), lvl(90)))
	assert.Error(t, ValidateRiskLevels(SideSell, price, lvl(95), none))
	assert.NoError(t, ValidateRiskLevels(SideSell, price, none, none))
}
