package store

import "context"

// Orders returns stored orders for symbol, or every symbol when empty, oldest first.
func (r *Recorder) Orders(ctx context.Context, symbol string) ([]OrderRecord, error) {
	var out []OrderRecord
	q := r.db.WithContext(ctx).Order("created_at, id")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	return out, q.Find(&out).Error
}

func (r *Recorder) Trades(ctx context.Context, symbol string) ([]TradeRecord, error) {
	var out []TradeRecord
	q := r.db.WithContext(ctx).Order("closed_at, id")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	return out, q.Find(&out).Error
}

func (r *Recorder) RiskEvents(ctx context.Context) ([]RiskEventRecord, error) {
	var out []RiskEventRecord
	return out, r.db.WithContext(ctx).Order("timestamp, id").Find(&out).Error
}

func (r *Recorder) Counters(ctx context.Context) ([]CounterRecord, error) {
	var out []CounterRecord
	return out, r.db.WithContext(ctx).Order("number").Find(&out).Error
}
