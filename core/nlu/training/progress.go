package training

import "sync"

// macroSteps is the number of progress checkpoints of a training run.
const macroSteps = 5

// progress reports a monotonically increasing fraction to a callback.
type progress struct {
	mu   sync.Mutex
	fn   func(float64)
	last float64
}

func newProgress(fn func(float64)) *progress {
	return &progress{fn: fn}
}

// step reports completion of macro step n (1-based).
func (p *progress) step(n int) {
	p.report(float64(n) / macroSteps)
}

func (p *progress) report(v float64) {
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= p.last {
		return
	}
	p.last = v
	if p.fn != nil {
		p.fn(v)
	}
}
