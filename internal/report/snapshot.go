package report

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

// Snapshot captures engine state at a point in time.
type Snapshot struct {
	Timestamp    time.Time          `json:"timestamp"`
	Mode         string             `json:"mode"`
	Equity       float64            `json:"equity"`
	Trading      model.TradingStats `json:"trading"`
	Risk         RiskEntry          `json:"risk"`
	Symbols      []SymbolEntry      `json:"symbols"`
	ActiveOrders []model.Order      `json:"activeOrders"`
}

type RiskEntry struct {
	Status          string  `json:"status"`
	PaperMode       bool    `json:"paperMode"`
	EmergencyStop   bool    `json:"emergencyStop"`
	CurrentDrawdown float64 `json:"currentDrawdown"`
	MaxDrawdown     float64 `json:"maxDrawdown"`
	HighWaterMark   float64 `json:"highWaterMark"`
	DailyRiskUsed   float64 `json:"dailyRiskUsed"`
	CounterNumber   int     `json:"counterNumber"`
	CounterOrders   int     `json:"counterOrders"`
}

// SymbolEntry is the brick state of one instrument.
type SymbolEntry struct {
	Symbol     string          `json:"symbol"`
	BrickSize  decimal.Decimal `json:"brickSize"`
	Reference  decimal.Decimal `json:"reference"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
	Sequence   uint64          `json:"sequence"`
	Bricks     int             `json:"bricks"`
	LastBricks []string        `json:"lastBricks"`
}

func NewRiskEntry(r model.RiskSnapshot) RiskEntry {
	return RiskEntry{
		Status:          r.Status.String(),
		PaperMode:       r.PaperMode,
		EmergencyStop:   r.EmergencyStop,
		CurrentDrawdown: r.CurrentDrawdown,
		MaxDrawdown:     r.MaxDrawdown,
		HighWaterMark:   r.HighWaterMark,
		DailyRiskUsed:   r.DailyRiskUsed,
		CounterNumber:   r.CounterNumber,
		CounterOrders:   r.CounterOrders,
	}
}

// BrickTrail renders bricks as a compact "U"/"D" string, oldest first.
func BrickTrail(bricks []model.Brick) []string {
	out := make([]string, len(bricks))
	for i, b := range bricks {
		if b.Direction == enum.DirectionUp {
			out[i] = "U"
		} else {
			out[i] = "D"
		}
	}
	return out
}

// WriteSnapshot writes a snapshot to disk as indented JSON, symbols sorted.
func WriteSnapshot(path string, snap Snapshot) error {
	sort.Slice(snap.Symbols, func(i, j int) bool {
		return snap.Symbols[i].Symbol < snap.Symbols[j].Symbol
	})
	data, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return snap, nil
}
