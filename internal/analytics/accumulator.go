package analytics

import (
	"fmt"
	"math/big"
	"time"

	"rugpullsim/internal/model"
)

// Accumulator holds the activity of one pool inside one window.
type Accumulator struct {
	PoolID      model.PoolID
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	VolumeA     *big.Int
	VolumeB     *big.Int
	DepositedA  *big.Int
	DepositedB  *big.Int
	WithdrawnA  *big.Int
	WithdrawnB  *big.Int
	DrainedA    *big.Int
	DrainedB    *big.Int
	LPMinted    *big.Int
	LPBurned    *big.Int
	Drained     bool
	LastTS      time.Time
	ReserveA    uint64
	ReserveB    uint64
	LPSupply    uint64
}

func NewAccumulator(id model.PoolID, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolID:      id,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeA:     new(big.Int),
		VolumeB:     new(big.Int),
		DepositedA:  new(big.Int),
		DepositedB:  new(big.Int),
		WithdrawnA:  new(big.Int),
		WithdrawnB:  new(big.Int),
		DrainedA:    new(big.Int),
		DrainedB:    new(big.Int),
		LPMinted:    new(big.Int),
		LPBurned:    new(big.Int),
	}
}

func add(target *big.Int, value uint64) {
	target.Add(target, new(big.Int).SetUint64(value))
}

// AddEvent folds one journal event into the window. The closing reserves and
// supply track the latest event seen.
func (a *Accumulator) AddEvent(event model.Event) error {
	if event.PoolID != a.PoolID {
		return fmt.Errorf("event for pool %d in accumulator for pool %d", event.PoolID, a.PoolID)
	}

	switch event.Type {
	case model.EventSwap:
		dir, err := model.ParseDirection(event.Direction)
		if err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		if dir == model.AToB {
			add(a.VolumeA, event.AmountIn)
			add(a.VolumeB, event.AmountOut)
		} else {
			add(a.VolumeB, event.AmountIn)
			add(a.VolumeA, event.AmountOut)
		}
		a.SwapCount++
	case model.EventAddLiquidity:
		add(a.DepositedA, event.AmountA)
		add(a.DepositedB, event.AmountB)
		add(a.LPMinted, event.LPMinted)
	case model.EventRemoveLiquidity:
		add(a.WithdrawnA, event.AmountA)
		add(a.WithdrawnB, event.AmountB)
		add(a.LPBurned, event.LPBurned)
	case model.EventDrain:
		add(a.DrainedA, event.AmountA)
		add(a.DrainedB, event.AmountB)
		a.Drained = true
	case model.EventCreatePool:
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	if !event.Timestamp.Before(a.LastTS) {
		a.LastTS = event.Timestamp
		a.ReserveA = event.ReserveA
		a.ReserveB = event.ReserveB
		a.LPSupply = event.LPSupply
	}
	return nil
}

// Metrics renders the window as a storable row.
func (a *Accumulator) Metrics() model.PoolWindowMetrics {
	return model.PoolWindowMetrics{
		PoolID:          a.PoolID,
		WindowSizeSecs:  int64(a.WindowEnd - a.WindowStart),
		WindowStart:     time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(a.WindowEnd), 0).UTC(),
		SwapCount:       a.SwapCount,
		VolumeA:         a.VolumeA.String(),
		VolumeB:         a.VolumeB.String(),
		DepositedA:      a.DepositedA.String(),
		DepositedB:      a.DepositedB.String(),
		WithdrawnA:      a.WithdrawnA.String(),
		WithdrawnB:      a.WithdrawnB.String(),
		DrainedA:        a.DrainedA.String(),
		DrainedB:        a.DrainedB.String(),
		LPMinted:        a.LPMinted.String(),
		LPBurned:        a.LPBurned.String(),
		ClosingReserveA: fmt.Sprint(a.ReserveA),
		ClosingReserveB: fmt.Sprint(a.ReserveB),
		ClosingLPSupply: fmt.Sprint(a.LPSupply),
		Drained:         a.Drained,
	}
}
