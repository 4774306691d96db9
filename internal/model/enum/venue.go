package enum

import "strings"

// Venue names an exchange the order manager can route to.
type Venue uint8

const (
	_venue_beg Venue = iota
	VenuePaper
	VenueBinance
	VenueDeribit
	VenueCoinbase
	VenueMT4
	VenueMT5
	_venue_end
)

var venueNames = [...]string{
	VenuePaper:    "paper",
	VenueBinance:  "binance",
	VenueDeribit:  "deribit",
	VenueCoinbase: "coinbase",
	VenueMT4:      "mt4",
	VenueMT5:      "mt5",
}

func (v Venue) IsAvailable() bool {
	return v > _venue_beg && v < _venue_end
}

func (v Venue) String() string {
	if !v.IsAvailable() {
		return "unknown"
	}
	return venueNames[v]
}

// ParseVenue resolves a case-insensitive venue name.
func ParseVenue(name string) (Venue, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for v := _venue_beg + 1; v < _venue_end; v++ {
		if venueNames[v] == name {
			return v, true
		}
	}
	return 0, false
}

// Venues lists every known venue in declaration order.
func Venues() []Venue {
	out := make([]Venue, 0, int(_venue_end)-1)
	for v := _venue_beg + 1; v < _venue_end; v++ {
		out = append(out, v)
	}
	return out
}
