package report

import (
	"math"
	"time"
)

// Basis is the principal/carry/overheads triple of a position flow, carried
// in parallel for local-currency and fixed (flow-date FX) report-currency
// terms.
type Basis struct {
	Principal float64
	Carry     float64
	Overheads float64
}

func (b Basis) add(o Basis) Basis {
	return Basis{b.Principal + o.Principal, b.Carry + o.Carry, b.Overheads + o.Overheads}
}

func (b Basis) scale(f float64) Basis {
	return Basis{b.Principal * f, b.Carry * f, b.Overheads * f}
}

// Total sums the three components.
func (b Basis) Total() float64 {
	return b.Principal + b.Carry + b.Overheads
}

// Flow is one position-affecting event fed into the lot engine, with signed
// amounts as booked in the ledger (outflows negative).
type Flow struct {
	Date  time.Time
	Size  float64
	Loc   Basis
	Fixed Basis
}

type lot struct {
	date  time.Time
	size  float64
	loc   Basis
	fixed Basis
}

// LotEngine matches position-closing flows against open lots and splits the
// stream into a closed (realised) part and the surviving open basis.
//
// Under AVCO every opening flow merges into one pooled lot, so closes
// release basis at the running average cost. Under FIFO lots are kept in
// arrival order and consumed oldest first. A flow that overshoots the open
// position closes it entirely and opens a new lot on the other side with
// the leftover fraction of its amounts.
type LotEngine struct {
	method      CostMethod
	lots        []lot
	closedLoc   Basis
	closedFixed Basis
}

// NewLotEngine creates an engine for the given cost method.
func NewLotEngine(method CostMethod) *LotEngine {
	return &LotEngine{method: method}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// Add feeds the next flow, in effective-date order.
func (e *LotEngine) Add(f Flow) {
	if f.Size == 0 {
		// Costless P&L event (e.g. an instrument_pl row): fully realised.
		e.closedLoc = e.closedLoc.add(f.Loc)
		e.closedFixed = e.closedFixed.add(f.Fixed)
		return
	}

	remaining := f.Size
	for remaining != 0 && len(e.lots) > 0 && !sameSign(e.lots[0].size, remaining) {
		l := &e.lots[0]
		matched := math.Min(math.Abs(remaining), math.Abs(l.size))

		lotFrac := matched / math.Abs(l.size)
		e.closedLoc = e.closedLoc.add(l.loc.scale(lotFrac))
		e.closedFixed = e.closedFixed.add(l.fixed.scale(lotFrac))
		l.loc = l.loc.scale(1 - lotFrac)
		l.fixed = l.fixed.scale(1 - lotFrac)
		l.size -= math.Copysign(matched, l.size)

		flowFrac := matched / math.Abs(f.Size)
		e.closedLoc = e.closedLoc.add(f.Loc.scale(flowFrac))
		e.closedFixed = e.closedFixed.add(f.Fixed.scale(flowFrac))

		remaining -= math.Copysign(matched, remaining)
		if l.size == 0 {
			e.lots = e.lots[1:]
		}
	}

	if remaining == 0 {
		return
	}

	openFrac := math.Abs(remaining) / math.Abs(f.Size)
	opened := lot{
		date:  f.Date,
		size:  remaining,
		loc:   f.Loc.scale(openFrac),
		fixed: f.Fixed.scale(openFrac),
	}
	if e.method == CostMethodAVCO && len(e.lots) > 0 {
		pool := &e.lots[0]
		pool.size += opened.size
		pool.loc = pool.loc.add(opened.loc)
		pool.fixed = pool.fixed.add(opened.fixed)
		return
	}
	e.lots = append(e.lots, opened)
}

// OpenSize returns the signed surviving position.
func (e *LotEngine) OpenSize() float64 {
	var size float64
	for _, l := range e.lots {
		size += l.size
	}
	return size
}

// OpenLoc returns the open basis in local-currency terms.
func (e *LotEngine) OpenLoc() Basis {
	var b Basis
	for _, l := range e.lots {
		b = b.add(l.loc)
	}
	return b
}

// OpenFixed returns the open basis in fixed report-currency terms.
func (e *LotEngine) OpenFixed() Basis {
	var b Basis
	for _, l := range e.lots {
		b = b.add(l.fixed)
	}
	return b
}

// ClosedLoc returns the realised amounts in local-currency terms.
func (e *LotEngine) ClosedLoc() Basis { return e.closedLoc }

// ClosedFixed returns the realised amounts in fixed report-currency terms.
func (e *LotEngine) ClosedFixed() Basis { return e.closedFixed }

// OldestOpenDate returns the date of the earliest surviving lot, or zero
// when the position is flat.
func (e *LotEngine) OldestOpenDate() time.Time {
	var oldest time.Time
	for _, l := range e.lots {
		if oldest.IsZero() || l.date.Before(oldest) {
			oldest = l.date
		}
	}
	return oldest
}
