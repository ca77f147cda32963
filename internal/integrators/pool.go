package integrators

import "sync"

// bufPool recycles the stage vectors of the Runge-Kutta integrators between
// steps and across concurrent trajectories.
type bufPool struct {
	pool sync.Pool
}

var buffers = &bufPool{
	pool: sync.Pool{
		New: func() interface{} {
			b := make([]float64, 0, 64)
			return &b
		},
	},
}

// get returns a zeroed slice of length n.
func (p *bufPool) get(n int) []float64 {
	bp := p.pool.Get().(*[]float64)
	b := *bp
	if cap(b) < n {
		b = make([]float64, n)
	}
	b = b[:n]
	for i := range b {
		b[i] = 0
	}
	return b
}

func (p *bufPool) put(bufs ...[]float64) {
	for _, b := range bufs {
		b := b[:0]
		p.pool.Put(&b)
	}
}
