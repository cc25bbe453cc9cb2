package engine

import (
	. "fractal/internal/common"

	"github.com/rs/zerolog/log"
)

// LogReporter writes every event to the global zerolog logger.
type LogReporter struct{}

func (LogReporter) ReportEvent(event Event) {
	entry := log.Info().
		Str("event", event.Kind.String()).
		Str("id", event.ID.String()).
		Uint64("item", uint64(event.Item))

	if event.From != ZeroAddress {
		entry = entry.Str("from", event.From.Hex())
	}
	if event.To != ZeroAddress {
		entry = entry.Str("to", event.To.Hex())
	}
	if event.Amount > 0 {
		entry = entry.Uint64("amount", event.Amount)
	}
	switch event.Kind {
	case TradingOpened, PriceUpdated, VotesTraded:
		entry = entry.
			Uint64("unit_price", event.UnitPrice).
			Str("total_price", FormatPrice(&event.Stats.TotalPrice)).
			Str("average_price", FormatPrice(&event.Stats.AveragePrice))
	}
	entry.Msg("ledger event")
}

// MultiReporter fans an event out to several reporters, in order.
type MultiReporter []Reporter

func (m MultiReporter) ReportEvent(event Event) {
	for _, r := range m {
		r.ReportEvent(event)
	}
}
