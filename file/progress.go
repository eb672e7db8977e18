package file

import "math/bits"

// progress turns a byte count into de-duplicated whole percentages.
type progress struct {
	total   uint64
	written uint64
	last    int
}

func newProgress(total uint64) *progress {
	return &progress{total: total}
}

// advance adds n bytes and returns the new percentage when it differs from
// the last one reported. A zero total never reports, and the value is clamped
// to 100 when a peer sends more than it announced.
func (p *progress) advance(n int) (int, bool) {
	p.written += uint64(n)
	if p.total == 0 {
		return 0, false
	}

	percent := 100
	if p.written < p.total {
		hi, lo := bits.Mul64(p.written, 100)
		q, _ := bits.Div64(hi, lo, p.total)
		percent = int(q)
	}
	if percent <= p.last {
		return p.last, false
	}
	p.last = percent
	return percent, true
}

func (p *progress) overrun() bool {
	return p.written > p.total
}
