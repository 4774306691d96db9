package brick

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/model/enum"
	"renkotrader/pkg/exception"
)

func d(s string) decimal.Decimal {
	return decimal.Require(s)
}

func newTestEngine(t *testing.T, size string, maxBricks int) *Engine {
	t.Helper()
	e, err := NewEngine(Config{Symbol: "EURUSD", BrickSize: d(size), MaxBricks: maxBricks})
	require.NoError(t, err)
	return e
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Config{Symbol: "EURUSD", BrickSize: decimal.Zero})
	require.Error(t, err)

	_, err = NewEngine(Config{Symbol: "EURUSD", BrickSize: d("-0.001")})
	require.Error(t, err)

	_, err = NewEngine(Config{Symbol: "EURUSD", BrickSize: d("0.001"), MaxBricks: -1})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "max bricks must be >= 0")

	_, err = NewEngine(Config{Symbol: "EURUSD", BrickSize: d("0.001"), TickValue: d("-0.0001")})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)

	e, err := NewEngine(Config{Symbol: "EURUSD", BrickSize: d("0.001")})
	require.NoError(t, err)
	assert.True(t, e.TickValue().Equal(DefaultTickValue))
	assert.Equal(t, DefaultMaxBricks, e.maxBricks)
}

func TestAddPriceSeedsWithoutBricks(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	assert.Equal(t, 0, e.AddPrice(d("1.10000"), now))
	assert.Equal(t, 0, e.BrickCount())
	forming := e.FormingBrick()
	assert.True(t, forming.Open.Equal(d("1.10000")))
	assert.Equal(t, 0.0, forming.Completion)
	assert.True(t, e.NextUpLevel().Equal(d("1.1010")))
	assert.True(t, e.NextDownLevel().Equal(d("1.0990")))
}

func TestAddPriceMultiBrickJump(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	e.AddPrice(d("1.10000"), now)
	assert.Equal(t, 2, e.AddPrice(d("1.10250"), now.Add(time.Second)))

	bricks := e.Bricks(0)
	require.Len(t, bricks, 2)
	assert.True(t, bricks[0].Open.Equal(d("1.1000")))
	assert.True(t, bricks[0].Close.Equal(d("1.1010")))
	assert.True(t, bricks[1].Open.Equal(d("1.1010")))
	assert.True(t, bricks[1].Close.Equal(d("1.1020")))
	for _, b := range bricks {
		assert.Equal(t, enum.DirectionUp, b.Direction)
		assert.Equal(t, 1.0, b.Completion)
		assert.True(t, b.High.Equal(b.Close))
		assert.True(t, b.Low.Equal(b.Open))
	}

	forming := e.FormingBrick()
	assert.Equal(t, enum.DirectionUp, forming.Direction)
	assert.InDelta(t, 0.5, forming.Completion, 1e-12)
	assert.True(t, forming.Open.Equal(d("1.1020")))
}

func TestAddPriceBrickCountMatchesMove(t *testing.T) {
	testCases := []struct {
		desc       string
		to         string
		bricks     int
		dir        enum.Direction
		completion float64
	}{
		{desc: "below one brick", to: "1.10040", bricks: 0, dir: enum.DirectionUp, completion: 0.4},
		{desc: "exactly one brick", to: "1.10100", bricks: 1, dir: enum.DirectionUp, completion: 0},
		{desc: "three and a bit", to: "1.10370", bricks: 3, dir: enum.DirectionUp, completion: 0.7},
		{desc: "down two and a bit", to: "1.09780", bricks: 2, dir: enum.DirectionDown, completion: 0.2},
		{desc: "down exactly five", to: "1.09500", bricks: 5, dir: enum.DirectionDown, completion: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			e := newTestEngine(t, "0.0010", 0)
			now := time.Now()
			e.AddPrice(d("1.10000"), now)

			assert.Equal(t, tc.bricks, e.AddPrice(d(tc.to), now))
			assert.Equal(t, tc.bricks, e.BrickCount())
			if tc.bricks > 0 {
				last, ok := e.LastBrick()
				require.True(t, ok)
				assert.Equal(t, tc.dir, last.Direction)
			}
			assert.InDelta(t, tc.completion, e.PartialCompletion(), 1e-12)
		})
	}
}

func TestAddPriceIgnoresNonPositive(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	assert.Equal(t, 0, e.AddPrice(decimal.Zero, now))
	assert.Equal(t, 0, e.AddPrice(d("-1.2"), now))
	assert.True(t, e.LastPrice().IsZero())

	e.AddPrice(d("1.1000"), now)
	e.AddPrice(d("1.1005"), now)
	e.AddPrice(d("-1.1005"), now)
	assert.True(t, e.LastPrice().Equal(d("1.1005")))
	assert.InDelta(t, 0.5, e.PartialCompletion(), 1e-12)
}

func TestFormingBrickFollowsCloserSide(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	e.AddPrice(d("1.1000"), now)
	e.AddPrice(d("1.1003"), now)
	assert.Equal(t, enum.DirectionUp, e.FormingBrick().Direction)

	e.AddPrice(d("1.0996"), now)
	assert.Equal(t, enum.DirectionDown, e.FormingBrick().Direction)
	assert.InDelta(t, 0.4, e.PartialCompletion(), 1e-12)
	assert.Equal(t, 0, e.BrickCount())
}

func TestReversalUsesLastClose(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	e.AddPrice(d("1.1000"), now)
	e.AddPrice(d("1.1020"), now)
	require.Equal(t, 2, e.BrickCount())

	assert.Equal(t, 1, e.AddPrice(d("1.1010"), now))
	last, ok := e.LastBrick()
	require.True(t, ok)
	assert.Equal(t, enum.DirectionDown, last.Direction)
	assert.True(t, last.Open.Equal(d("1.1020")))
	assert.True(t, last.Close.Equal(d("1.1010")))
	assert.True(t, last.High.Equal(d("1.1020")))
	assert.True(t, last.Low.Equal(d("1.1010")))
}

func TestEvictionKeepsNewest(t *testing.T) {
	e := newTestEngine(t, "1", 5)
	now := time.Now()

	e.AddPrice(d("100"), now)
	assert.Equal(t, 12, e.AddPrice(d("112"), now))

	bricks := e.Bricks(0)
	require.Len(t, bricks, 5)
	assert.True(t, bricks[0].Open.Equal(d("107")))
	assert.True(t, bricks[4].Close.Equal(d("112")))

	snap := e.Snapshot(0)
	assert.Equal(t, uint64(12), snap.Sequence)
	assert.Equal(t, 5, snap.Total)

	for i := 0; i < 50; i++ {
		e.AddPrice(d("112").Add(decimal.NewFromInt(int64(i+1))), now)
		assert.LessOrEqual(t, e.BrickCount(), 5)
	}
}

func TestCompletionAlwaysInRange(t *testing.T) {
	e := newTestEngine(t, "0.0010", 100)
	rng := rand.New(rand.NewSource(7))
	price := 1.1
	now := time.Now()

	for i := 0; i < 5000; i++ {
		price += (rng.Float64() - 0.5) * 0.004
		if price <= 0.01 {
			price = 0.01
		}
		e.AddPrice(decimal.NewFromFloat(price), now.Add(time.Duration(i)*time.Millisecond))
		c := e.PartialCompletion()
		require.GreaterOrEqual(t, c, 0.0)
		require.LessOrEqual(t, c, 1.0)
		require.LessOrEqual(t, e.BrickCount(), 100)
	}
}

func TestSetBrickSizeIsProspective(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	e.AddPrice(d("1.1000"), now)
	e.AddPrice(d("1.1010"), now)
	require.Equal(t, 1, e.BrickCount())

	assert.False(t, e.SetBrickSize(decimal.Zero))
	assert.False(t, e.SetBrickSize(d("-0.5")))
	assert.True(t, e.BrickSize().Equal(d("0.0010")))

	assert.True(t, e.SetBrickSize(d("0.0020")))
	assert.Equal(t, 1, e.AddPrice(d("1.1030"), now))

	bricks := e.Bricks(0)
	require.Len(t, bricks, 2)
	assert.True(t, bricks[0].Close.Sub(bricks[0].Open).Equal(d("0.0010")))
	assert.True(t, bricks[1].Close.Sub(bricks[1].Open).Equal(d("0.0020")))
	assert.InDelta(t, 0.0, e.PartialCompletion(), 1e-12)
}

func TestQueries(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	now := time.Now()

	e.AddPrice(d("1.1000"), now)
	e.AddPrice(d("1.1010"), now) // up
	e.AddPrice(d("1.1000"), now) // down
	e.AddPrice(d("1.0990"), now) // down
	e.AddPrice(d("1.0995"), now) // forming up, 0.5

	assert.Len(t, e.Bricks(2), 2)
	assert.Len(t, e.Bricks(10), 3)
	assert.Equal(t, enum.DirectionUp, e.Bricks(0)[0].Direction)

	assert.True(t, e.HasConsecutiveDown(2))
	assert.False(t, e.HasConsecutiveDown(3))
	assert.False(t, e.HasConsecutiveUp(1))
	assert.False(t, e.HasConsecutiveDown(0))
	assert.Equal(t, 2, e.ConsecutiveCount(enum.DirectionDown))
	assert.Equal(t, 0, e.ConsecutiveCount(enum.DirectionUp))
	assert.False(t, e.HasGreenRedGreen())
	assert.False(t, e.HasRedGreenRed())

	assert.True(t, e.NextUpLevel().Equal(d("1.1000")))
	assert.True(t, e.NextDownLevel().Equal(d("1.0980")))

	assert.True(t, e.CalculateStop(enum.OrderSideBuy, 2).Equal(d("1.0978")))
	assert.True(t, e.CalculateStop(enum.OrderSideSell, 2).Equal(d("1.1002")))
	assert.True(t, e.EntryPrice(enum.OrderSideBuy, 2).Equal(d("1.1002")))
	assert.True(t, e.EntryPrice(enum.OrderSideSell, 2).Equal(d("1.0978")))

	assert.True(t, e.SetTickValue(d("0.00001")))
	assert.False(t, e.SetTickValue(decimal.Zero))
	assert.True(t, e.CalculateStop(enum.OrderSideBuy, 2).Equal(d("1.09798")))
}

func TestCalculateStopWithoutBricks(t *testing.T) {
	e := newTestEngine(t, "0.0010", 0)
	e.AddPrice(d("1.1000"), time.Now())

	assert.True(t, e.CalculateStop(enum.OrderSideBuy, 0).Equal(d("1.0990")))
	assert.True(t, e.CalculateStop(enum.OrderSideSell, 1).Equal(d("1.1011")))
}

func TestSnapshotIsDetached(t *testing.T) {
	e := newTestEngine(t, "1", 0)
	now := time.Now()
	e.AddPrice(d("100"), now)
	e.AddPrice(d("103"), now)

	snap := e.Snapshot(2)
	require.Len(t, snap.Bricks, 2)
	assert.Equal(t, 3, snap.Total)

	e.AddPrice(d("90"), now)
	assert.Len(t, snap.Bricks, 2)
	assert.True(t, snap.Bricks[1].Close.Equal(d("103")))
	assert.Equal(t, uint64(3), snap.Sequence)
}

func TestReset(t *testing.T) {
	e := newTestEngine(t, "1", 0)
	now := time.Now()
	e.AddPrice(d("100"), now)
	e.AddPrice(d("102"), now)

	e.Reset()
	assert.Equal(t, 0, e.BrickCount())
	assert.True(t, e.LastPrice().IsZero())

	assert.Equal(t, 0, e.AddPrice(d("50"), now))
	assert.True(t, e.FormingBrick().Open.Equal(d("50")))
}

func TestConcurrentReaders(t *testing.T) {
	e := newTestEngine(t, "0.5", 50)
	now := time.Now()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := e.Snapshot(3)
				assert.LessOrEqual(t, len(snap.Bricks), 3)
				assert.GreaterOrEqual(t, snap.Forming.Completion, 0.0)
				assert.LessOrEqual(t, snap.Forming.Completion, 1.0)
				_ = e.CalculateStop(enum.OrderSideBuy, 2)
			}
		}()
	}

	price := decimal.NewFromInt(100)
	step := d("0.3")
	for i := 0; i < 2000; i++ {
		if i%40 < 20 {
			price = price.Add(step)
		} else {
			price = price.Sub(step)
		}
		e.AddPrice(price, now)
	}
	close(done)
	wg.Wait()
	assert.LessOrEqual(t, e.BrickCount(), 50)
}

func BenchmarkAddPrice(b *testing.B) {
	e, err := NewEngine(Config{Symbol: "EURUSD", BrickSize: d("0.0010")})
	require.NoError(b, err)
	prices := make([]decimal.Decimal, 1024)
	rng := rand.New(rand.NewSource(1))
	p := 1.1
	for i := range prices {
		p += (rng.Float64() - 0.5) * 0.002
		prices[i] = decimal.NewFromFloat(p)
	}
	now := time.Now()

	i := 0
	for b.Loop() {
		e.AddPrice(prices[i&1023], now)
		i++
	}
}
