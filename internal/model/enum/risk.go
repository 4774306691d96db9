package enum

type RiskStatus int32

const (
	RiskStatusNormal RiskStatus = iota
	RiskStatusWarning
	RiskStatusLimitReached
	RiskStatusPaperMode
)

func (s RiskStatus) String() string {
	switch s {
	case RiskStatusNormal:
		return "NORMAL"
	case RiskStatusWarning:
		return "WARNING"
	case RiskStatusLimitReached:
		return "LIMIT_REACHED"
	case RiskStatusPaperMode:
		return "PAPER_MODE"
	default:
		return "UNKNOWN"
	}
}

// RiskEventKind classifies records emitted by the risk manager.
type RiskEventKind uint8

const (
	_riskEvent_beg RiskEventKind = iota
	RiskEventOrderRejected
	RiskEventPaperMode
	RiskEventLiveMode
	RiskEventEmergencyStop
	RiskEventEmergencyRelease
	RiskEventDrawdownWarning
	RiskEventDrawdownLimit
	RiskEventCounterCompleted
	RiskEventDailyReset
	_riskEvent_end
)

func (k RiskEventKind) IsAvailable() bool {
	return k > _riskEvent_beg && k < _riskEvent_end
}

func (k RiskEventKind) String() string {
	switch k {
	case RiskEventOrderRejected:
		return "ORDER_REJECTED"
	case RiskEventPaperMode:
		return "PAPER_MODE"
	case RiskEventLiveMode:
		return "LIVE_MODE"
	case RiskEventEmergencyStop:
		return "EMERGENCY_STOP"
	case RiskEventEmergencyRelease:
		return "EMERGENCY_RELEASE"
	case RiskEventDrawdownWarning:
		return "DRAWDOWN_WARNING"
	case RiskEventDrawdownLimit:
		return "DRAWDOWN_LIMIT"
	case RiskEventCounterCompleted:
		return "COUNTER_COMPLETED"
	case RiskEventDailyReset:
		return "DAILY_RESET"
	default:
		return "UNKNOWN"
	}
}

// RejectReason explains why the risk manager blocked an order.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectEmergencyStop
	RejectDailyRisk
	RejectDrawdown
)

func (r RejectReason) String() string {
	switch r {
	case RejectEmergencyStop:
		return "emergency stop active"
	case RejectDailyRisk:
		return "daily risk limit reached"
	case RejectDrawdown:
		return "max drawdown reached"
	default:
		return "none"
	}
}
