package strategy

// EMA is an exponential moving average seeded with its first sample.
type EMA struct {
	period  int
	alpha   float64
	value   float64
	samples int
}

// NewEMA returns an EMA with alpha = 2/(period+1).
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

// Update folds one sample into the average.
func (e *EMA) Update(v float64) {
	if e.samples == 0 {
		e.value = v
	} else {
		e.value = e.alpha*v + (1-e.alpha)*e.value
	}
	e.samples++
}

// Ready reports whether at least period samples have been seen.
func (e *EMA) Ready() bool { return e.samples >= e.period }

func (e *EMA) Value() float64 { return e.value }

func (e *EMA) Samples() int { return e.samples }
