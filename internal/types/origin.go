package types

import (
	"encoding/json"
	"strings"
)

type OriginKind int

const (
	OriginUnknown OriginKind = iota
	OriginOpen
	OriginHold
	OriginOvernight
	OriginManual
	OriginIntradaySquareoff
	OriginCommoditySquareoff
	OriginIntradayCleanup
	OriginOvernightExpiry
)

var originLabels = map[OriginKind]string{
	OriginOpen:               "Open",
	OriginHold:               "Hold",
	OriginOvernight:          "Overnight",
	OriginManual:             "Manual",
	OriginIntradaySquareoff:  "AutoSquareoff",
	OriginCommoditySquareoff: "AutoSquareoffMCX",
	OriginIntradayCleanup:    "IntradayCleanup",
	OriginOvernightExpiry:    "OvernightExpiry",
}

// Origin records where an order came from. Tags written before the engine
// existed are kept verbatim under OriginUnknown.
type Origin struct {
	Kind OriginKind
	Raw  string
}

func NewOrigin(k OriginKind) Origin {
	return Origin{Kind: k, Raw: originLabels[k]}
}

func ParseOrigin(s string) Origin {
	t := strings.TrimSpace(s)
	for k, label := range originLabels {
		if strings.EqualFold(label, t) {
			return Origin{Kind: k, Raw: label}
		}
	}
	return Origin{Kind: OriginUnknown, Raw: t}
}

func (o Origin) String() string {
	if o.Kind == OriginUnknown {
		return o.Raw
	}
	return originLabels[o.Kind]
}

// AllowsBrokerEdit reports whether a broker may edit a closed order with this
// origin. Positions carried in from Hold or Overnight are locked.
func (o Origin) AllowsBrokerEdit() bool {
	return o.Kind != OriginHold && o.Kind != OriginOvernight
}

func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Origin) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*o = Origin{}
		return nil
	}
	*o = ParseOrigin(*s)
	return nil
}
