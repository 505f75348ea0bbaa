// Package risk holds the pre-trade position gate. Everything here is pure:
// callers pass in the position they want checked and get a decision back.
package risk

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Reason explains why a quantity was clamped or refused.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonInvalidQuantity Reason = "invalid_quantity"
	ReasonMaxPosition     Reason = "max_position"
	ReasonReduceOnly      Reason = "reduce_capped"
	ReasonMaxSize         Reason = "max_size"
)

// Decision is the outcome of a gate check. Allowed may be smaller than
// Requested; an Allowed of zero means the order must not be sent.
type Decision struct {
	Side      domain.OrderSide
	Requested int64
	Allowed   int64
	Position  int64
	Reducing  bool
	Reason    Reason
}

// Submitted reports whether anything is left to send.
func (d Decision) Submitted() bool { return d.Allowed > 0 }

// Clamped reports whether the gate cut the requested quantity.
func (d Decision) Clamped() bool { return d.Allowed < d.Requested }

// Evaluate clamps a proposed order against the absolute position limit.
//
// An order that adds to the current exposure (or opens one from flat) may
// take the position up to maxPosition and no further. An order against the
// current exposure is allowed in full up to |position|, so it can flatten
// but never flip through zero.
func Evaluate(side domain.OrderSide, quantity, position, maxPosition int64) Decision {
	d := Decision{Side: side, Requested: quantity, Position: position}
	if quantity <= 0 || !side.Valid() {
		d.Reason = ReasonInvalidQuantity
		return d
	}

	exposure := abs(position)
	if position != 0 && sign(position) != side.Sign() {
		d.Reducing = true
		d.Allowed = min(quantity, exposure)
		if d.Clamped() {
			d.Reason = ReasonReduceOnly
		}
		return d
	}

	room := maxPosition - exposure
	if room <= 0 {
		d.Reason = ReasonMaxPosition
		return d
	}
	d.Allowed = min(quantity, room)
	if d.Clamped() {
		d.Reason = ReasonMaxPosition
	}
	return d
}

// Gate applies a fixed set of limits.
type Gate struct {
	limits domain.RiskLimits
}

// NewGate validates limits and returns a Gate enforcing them.
func NewGate(limits domain.RiskLimits) (*Gate, error) {
	if err := ValidateLimits(limits); err != nil {
		return nil, err
	}
	return &Gate{limits: limits}, nil
}

// Limits returns the configured limits.
func (g *Gate) Limits() domain.RiskLimits { return g.limits }

// Check caps quantity at the maximum order size and then evaluates it
// against the position limit.
func (g *Gate) Check(side domain.OrderSide, quantity, position int64) Decision {
	capped := quantity
	if g.limits.MaxSize > 0 && capped > g.limits.MaxSize {
		capped = g.limits.MaxSize
	}
	d := Evaluate(side, capped, position, g.limits.MaxPosition)
	d.Requested = quantity
	if capped < quantity && d.Reason == ReasonNone {
		d.Reason = ReasonMaxSize
	}
	return d
}

// ValidateLimits rejects limits that can never produce a sane order.
func ValidateLimits(l domain.RiskLimits) error {
	var errs []string
	if l.MinTick.IsNegative() {
		errs = append(errs, "min_tick must be >= 0")
	}
	if l.MaxPosition < 0 {
		errs = append(errs, "max_position must be >= 0")
	}
	if l.MinSize < 1 {
		errs = append(errs, "min_size must be >= 1")
	}
	if l.MaxSize < l.MinSize {
		errs = append(errs, "max_size must be >= min_size")
	}
	if l.MaxRejects < 1 {
		errs = append(errs, "max_rejects must be >= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("risk: %w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int64) int64 {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}
