package eod

import (
	"github.com/shopspring/decimal"

	"smartapi-basket/internal/types"
)

// quoteLine is one line of the quote log. Only the fields the summary
// needs are decoded.
type quoteLine struct {
	Time   string       `json:"time"`
	Symbol string       `json:"symbol"`
	Quote  *types.Quote `json:"quote"`
}

// aggRow holds the day's statistics for one symbol.
type aggRow struct {
	Symbol    string
	Exchange  string
	Samples   int
	FirstTime string
	LastTime  string
	FirstLTP  decimal.Decimal
	LastLTP   decimal.Decimal
	HighLTP   decimal.Decimal
	LowLTP    decimal.Decimal
	Volume    int64
}

func (r *aggRow) add(l quoteLine) {
	q := l.Quote
	if r.Samples == 0 {
		r.FirstTime = l.Time
		r.FirstLTP = q.LTP
		r.HighLTP = q.LTP
		r.LowLTP = q.LTP
	}
	r.Samples++
	r.Exchange = q.Exchange
	r.LastTime = l.Time
	r.LastLTP = q.LTP
	if q.LTP.GreaterThan(r.HighLTP) {
		r.HighLTP = q.LTP
	}
	if q.LTP.LessThan(r.LowLTP) {
		r.LowLTP = q.LTP
	}
	if q.Volume > r.Volume {
		r.Volume = q.Volume
	}
}

// changePct is the move from the first to the last sample.
func (r *aggRow) changePct() decimal.Decimal {
	if r.FirstLTP.IsZero() {
		return decimal.Zero
	}
	return r.LastLTP.Sub(r.FirstLTP).Div(r.FirstLTP).Mul(decimal.NewFromInt(100))
}
