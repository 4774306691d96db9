package order

import (
	"sync"

	"renkotrader/internal/model/enum"
)

const (
	// ewmaAlpha weights the newest spread and slippage samples.
	ewmaAlpha = 0.2
	// DefaultRejectPenalty is the cost charged per unit of missing fill rate.
	DefaultRejectPenalty = 0.001
)

type routeKey struct {
	symbol string
	venue  enum.Venue
}

type venueQuality struct {
	spread   float64
	slippage float64
	sent     int
	filled   int
}

// Router scores venues per symbol by observed relative spread, fill slippage
// and fill rate. Lower scores are cheaper.
type Router struct {
	mu            sync.Mutex
	quality       map[routeKey]*venueQuality
	rejectPenalty float64
}

func NewRouter(rejectPenalty float64) *Router {
	if rejectPenalty <= 0 {
		rejectPenalty = DefaultRejectPenalty
	}
	return &Router{
		quality:       make(map[routeKey]*venueQuality),
		rejectPenalty: rejectPenalty,
	}
}

func (r *Router) get(symbol string, venue enum.Venue) *venueQuality {
	k := routeKey{symbol: symbol, venue: venue}
	q, ok := r.quality[k]
	if !ok {
		q = &venueQuality{}
		r.quality[k] = q
	}
	return q
}

func ewma(prev, sample float64, first bool) float64 {
	if first {
		return sample
	}
	return prev + ewmaAlpha*(sample-prev)
}

// ObserveSpread records a relative spread (spread / mid) quoted by venue.
func (r *Router) ObserveSpread(symbol string, venue enum.Venue, spread float64) {
	if spread < 0 {
		return
	}
	r.mu.Lock()
	q := r.get(symbol, venue)
	q.spread = ewma(q.spread, spread, q.spread == 0)
	r.mu.Unlock()
}

func (r *Router) observeSent(symbol string, venue enum.Venue) {
	r.mu.Lock()
	r.get(symbol, venue).sent++
	r.mu.Unlock()
}

func (r *Router) observeFill(symbol string, venue enum.Venue, slippage float64, complete bool) {
	r.mu.Lock()
	q := r.get(symbol, venue)
	q.slippage = ewma(q.slippage, slippage, q.filled == 0)
	if complete {
		q.filled++
	}
	r.mu.Unlock()
}

// Score is the estimated relative cost of sending symbol to venue. A venue
// with no history scores its spread alone.
func (r *Router) Score(symbol string, venue enum.Venue) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quality[routeKey{symbol: symbol, venue: venue}]
	if !ok {
		return 0
	}
	fillRate := 1.0
	if q.sent > 0 {
		fillRate = float64(q.filled) / float64(q.sent)
		if fillRate > 1 {
			fillRate = 1
		}
	}
	return q.spread/2 + q.slippage + (1-fillRate)*r.rejectPenalty
}

// Best picks the cheapest candidate. Ties keep the earlier candidate.
func (r *Router) Best(symbol string, candidates []enum.Venue) (enum.Venue, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	bestScore := r.Score(symbol, best)
	for _, v := range candidates[1:] {
		if s := r.Score(symbol, v); s < bestScore {
			best, bestScore = v, s
		}
	}
	return best, true
}
