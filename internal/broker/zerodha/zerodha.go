package zerodha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/types"
)

type Params struct {
	Mode         string
	APIKey       string
	AccessToken  string
	Exchange     string
	Timeout      time.Duration
	StaticQuotes map[string]float64
}

// ltpClient is the slice of the Kite client the quote source needs.
type ltpClient interface {
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
}

type Zerodha struct {
	p      Params
	client ltpClient
}

var _ interfaces.QuoteSource = (*Zerodha)(nil)

// NewZerodha builds a quote source. DRY_RUN serves StaticQuotes and never
// touches the network.
func NewZerodha(p Params) (*Zerodha, error) {
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	z := &Zerodha{p: p}
	if p.Mode == "DRY_RUN" {
		return z, nil
	}
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errors.New("missing API key/access token")
	}

	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	if p.Timeout > 0 {
		kc.SetHTTPClient(&http.Client{Timeout: p.Timeout})
	}
	z.client = kc
	return z, nil
}

func (z *Zerodha) LastTradedPrice(ctx context.Context, instrumentToken string) (decimal.Decimal, error) {
	key := z.instrumentKey(instrumentToken)
	if key == "" {
		return decimal.Zero, fmt.Errorf("empty instrument: %w", types.ErrQuoteUnavailable)
	}
	if z.client == nil {
		return z.staticQuote(key, instrumentToken)
	}

	type result struct {
		quotes kiteconnect.QuoteLTP
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := z.client.GetLTP(key)
		ch <- result{q, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return decimal.Zero, fmt.Errorf("ltp %s: %w", key, ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return decimal.Zero, fmt.Errorf("ltp %s: %w", key, res.err)
	}

	q, ok := res.quotes[key]
	if !ok || q.LastPrice <= 0 {
		return decimal.Zero, fmt.Errorf("ltp %s: %w", key, types.ErrQuoteUnavailable)
	}
	return decimal.NewFromFloat(q.LastPrice), nil
}

// instrumentKey passes numeric instrument tokens through and qualifies bare
// trading symbols with the configured exchange.
func (z *Zerodha) instrumentKey(instrument string) string {
	s := strings.TrimSpace(instrument)
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseUint(s, 10, 32); err == nil {
		return s
	}
	if strings.Contains(s, ":") {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(z.p.Exchange) + ":" + strings.ToUpper(s)
}

func (z *Zerodha) staticQuote(key, raw string) (decimal.Decimal, error) {
	for _, k := range []string{raw, key} {
		if p, ok := z.p.StaticQuotes[k]; ok && p > 0 {
			return decimal.NewFromFloat(p), nil
		}
	}
	return decimal.Zero, fmt.Errorf("no static quote for %s: %w", key, types.ErrQuoteUnavailable)
}
