package brick

import (
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

// Snapshot is an immutable copy of an engine's state. Pattern detection
// reads snapshots so it never observes a brick mid-append.
type Snapshot struct {
	Symbol    string
	Bricks    []model.Brick
	Forming   model.FormingBrick
	BrickSize decimal.Decimal
	TickValue decimal.Decimal
	Reference decimal.Decimal
	LastPrice decimal.Decimal
	// Sequence counts every brick ever completed, including evicted ones.
	Sequence  uint64
	Total     int
	Seeded    bool
	UpdatedAt time.Time
}

// Last copies the last n bricks oldest first; n <= 0 copies all.
func (s Snapshot) Last(n int) []model.Brick {
	if n <= 0 || n > len(s.Bricks) {
		n = len(s.Bricks)
	}
	out := make([]model.Brick, n)
	copy(out, s.Bricks[len(s.Bricks)-n:])
	return out
}

func (s Snapshot) LastBrick() (model.Brick, bool) {
	if len(s.Bricks) == 0 {
		return model.Brick{}, false
	}
	return s.Bricks[len(s.Bricks)-1], true
}

// HasConsecutive reports whether the last n bricks all move in dir.
func (s Snapshot) HasConsecutive(dir enum.Direction, n int) bool {
	if n <= 0 || len(s.Bricks) < n {
		return false
	}
	for _, b := range s.Bricks[len(s.Bricks)-n:] {
		if b.Direction != dir {
			return false
		}
	}
	return true
}

// ConsecutiveCount is the length of the trailing run of bricks moving in dir.
func (s Snapshot) ConsecutiveCount(dir enum.Direction) int {
	count := 0
	for i := len(s.Bricks) - 1; i >= 0; i-- {
		if s.Bricks[i].Direction != dir {
			break
		}
		count++
	}
	return count
}

func (s Snapshot) HasGreenRedGreen() bool {
	return s.endsWith(enum.DirectionUp, enum.DirectionDown, enum.DirectionUp)
}

func (s Snapshot) HasRedGreenRed() bool {
	return s.endsWith(enum.DirectionDown, enum.DirectionUp, enum.DirectionDown)
}

func (s Snapshot) endsWith(dirs ...enum.Direction) bool {
	if len(s.Bricks) < len(dirs) {
		return false
	}
	tail := s.Bricks[len(s.Bricks)-len(dirs):]
	for i, dir := range dirs {
		if tail[i].Direction != dir {
			return false
		}
	}
	return true
}

func (s Snapshot) NextUpLevel() decimal.Decimal {
	return s.Reference.Add(s.BrickSize)
}

func (s Snapshot) NextDownLevel() decimal.Decimal {
	return s.Reference.Sub(s.BrickSize)
}

func (s Snapshot) bufferOf(tickBuffer int) decimal.Decimal {
	return s.TickValue.Mul(decimal.NewFromInt(int64(tickBuffer)))
}

// CalculateStop is one brick beyond the last completed close, pushed out by
// tickBuffer ticks. Without completed bricks the reference price stands in for the close.
func (s Snapshot) CalculateStop(side enum.OrderSide, tickBuffer int) decimal.Decimal {
	last := s.Reference
	if b, ok := s.LastBrick(); ok {
		last = b.Close
	}
	offset := s.BrickSize.Add(s.bufferOf(tickBuffer))
	if side == enum.OrderSideSell {
		return last.Add(offset)
	}
	return last.Sub(offset)
}

// EntryPrice is the next brick level in the side's direction pushed out by tickBuffer ticks.
func (s Snapshot) EntryPrice(side enum.OrderSide, tickBuffer int) decimal.Decimal {
	if side == enum.OrderSideSell {
		return s.NextDownLevel().Sub(s.bufferOf(tickBuffer))
	}
	return s.NextUpLevel().Add(s.bufferOf(tickBuffer))
}
