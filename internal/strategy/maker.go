package strategy

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// MakerName is the registry name of the quoting policy.
const MakerName = "maker"

// MakerConfig holds the quoting parameters.
type MakerConfig struct {
	Symbol    string
	NumLevels int
	MinEdge   float64
	// TheoThreshold is the smallest mid move that counts as a new theo.
	TheoThreshold float64
}

// Maker quotes a ladder of limit orders on both sides of the quote
// midpoint, keeping every resting order at least MinEdge away from theo.
type Maker struct {
	cfg     MakerConfig
	limits  domain.RiskLimits
	minEdge decimal.Decimal
	rng     *rand.Rand

	theo    float64
	hasTheo bool
}

// NewMaker validates cfg against limits and returns a Maker. A nil rng is
// replaced with a time-seeded one.
func NewMaker(cfg MakerConfig, limits domain.RiskLimits, rng *rand.Rand) (*Maker, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("maker: %w: symbol is required", domain.ErrInvalidConfig)
	}
	if cfg.NumLevels < 1 {
		return nil, fmt.Errorf("maker: %w: num_levels must be >= 1", domain.ErrInvalidConfig)
	}
	if err := validateEdge(cfg.MinEdge, limits.MinTick); err != nil {
		return nil, fmt.Errorf("maker: %w", err)
	}
	if limits.MinSize < 1 || limits.MaxSize < limits.MinSize {
		return nil, fmt.Errorf("maker: %w: size range [%d, %d]", domain.ErrInvalidConfig, limits.MinSize, limits.MaxSize)
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>17))
	}
	return &Maker{
		cfg:     cfg,
		limits:  limits,
		minEdge: decimal.NewFromFloat(cfg.MinEdge),
		rng:     rng,
	}, nil
}

func (m *Maker) Name() string { return MakerName }

func (m *Maker) Symbols() []string { return []string{m.cfg.Symbol} }

// Theo returns the current fair value.
func (m *Maker) Theo() (float64, bool) { return m.theo, m.hasTheo }

// OnQuote recomputes theo from the midpoint. Moves smaller than the
// threshold are ignored so noise does not churn the quotes.
func (m *Maker) OnQuote(q domain.Quote) Trigger {
	if q.Symbol != m.cfg.Symbol {
		return Skip
	}
	if !q.Valid() {
		if !m.hasTheo {
			return Skip
		}
		m.theo, m.hasTheo = 0, false
		return MarkDirty
	}
	mid := q.Mid()
	if m.hasTheo && math.Abs(mid-m.theo) < m.cfg.TheoThreshold {
		return Skip
	}
	m.theo, m.hasTheo = mid, true
	return MarkDirty
}

func (m *Maker) OnSecondBar(domain.Bar) Trigger { return Skip }

func (m *Maker) OnMinuteBar(domain.Bar) Trigger { return Skip }

// Decide cancels every quote with too little edge and fills the ladder back
// up to NumLevels per side, walking away from theo one tick per level.
func (m *Maker) Decide(in Input) []domain.Action {
	if !m.hasTheo {
		return []domain.Action{domain.CancelAll("no theo")}
	}
	theo := decimal.NewFromFloat(m.theo)

	var actions []domain.Action
	keptBuys := m.prune(domain.OrderSideBuy, in.Ledger.Buys, theo, &actions)
	keptSells := m.prune(domain.OrderSideSell, in.Ledger.Sells, theo, &actions)

	actions = m.fill(domain.OrderSideBuy, keptBuys, in.Ledger.UnconfirmedOn(domain.OrderSideBuy), theo, actions)
	actions = m.fill(domain.OrderSideSell, keptSells, in.Ledger.UnconfirmedOn(domain.OrderSideSell), theo, actions)
	return actions
}

// prune appends a cancel for every order whose edge is below MinEdge and
// returns the orders that survive, still in best-to-worst order.
func (m *Maker) prune(side domain.OrderSide, orders []domain.Order, theo decimal.Decimal, actions *[]domain.Action) []domain.Order {
	kept := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		edge := theo.Sub(o.Price)
		if side == domain.OrderSideSell {
			edge = o.Price.Sub(theo)
		}
		if edge.LessThan(m.minEdge) {
			*actions = append(*actions, domain.Cancel(o.ID, fmt.Sprintf("edge %s < %s", edge.StringFixed(3), m.minEdge.StringFixed(2))))
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// fill tops the side up to NumLevels, counting unconfirmed submits as
// occupied levels. New prices are rounded away from theo so every level
// keeps at least MinEdge and survives the next prune.
func (m *Maker) fill(side domain.OrderSide, kept []domain.Order, unconfirmed int, theo decimal.Decimal, actions []domain.Action) []domain.Action {
	tick := m.limits.MinTick
	step, snap := tick.Neg(), FloorTick
	price := theo.Sub(m.minEdge)
	if side == domain.OrderSideSell {
		step, snap = tick, CeilTick
		price = theo.Add(m.minEdge)
	}
	if len(kept) > 0 {
		price = kept[len(kept)-1].Price.Add(step)
	}
	price = snap(price, tick)

	for range m.cfg.NumLevels - len(kept) - unconfirmed {
		if side == domain.OrderSideBuy && price.LessThan(tick) {
			break
		}
		if !price.IsPositive() {
			break
		}
		actions = append(actions, domain.Submit(side, m.size(), price, domain.TimeInForceDay, "fill level"))
		price = price.Add(step)
	}
	return actions
}

func (m *Maker) size() int64 {
	lo, hi := m.limits.MinSize, m.limits.MaxSize
	return lo + m.rng.Int64N(hi-lo+1)
}

// validateEdge enforces min_edge >= 0 and min_edge >= min_tick.
func validateEdge(minEdge float64, tick decimal.Decimal) error {
	if minEdge < 0 {
		return fmt.Errorf("%w: min_edge must be >= 0", domain.ErrInvalidConfig)
	}
	if decimal.NewFromFloat(minEdge).LessThan(tick) {
		return fmt.Errorf("%w: min_edge %.2f must be >= min_tick %s", domain.ErrInvalidConfig, minEdge, tick.String())
	}
	return nil
}
