package enum

type OrderSide uint8

const (
	_orderSide_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_orderSide_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _orderSide_beg && s < _orderSide_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Sign is +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

type OrderType uint8

const (
	_orderType_beg OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
	OrderTypeTrailingStop
	OrderTypeHybrid
	_orderType_end
)

func (t OrderType) IsAvailable() bool {
	return t > _orderType_beg && t < _orderType_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	case OrderTypeTrailingStop:
		return "TRAILING_STOP"
	case OrderTypeHybrid:
		return "HYBRID"
	default:
		return "UNKNOWN"
	}
}

// IsStop reports whether the order waits for a trigger price.
func (t OrderType) IsStop() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit || t == OrderTypeTrailingStop
}

type OrderStatus uint8

const (
	_orderStatus_beg OrderStatus = iota
	OrderStatusPending
	OrderStatusSubmitted
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusExpired
	_orderStatus_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _orderStatus_beg && s < _orderStatus_end
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusSubmitted:
		return "SUBMITTED"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status ends the order lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}
