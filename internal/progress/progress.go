package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type Phase string

const (
	PhaseGather   Phase = "gather"
	PhaseCompress Phase = "compress"
)

// Update is one progress report. Percent is in [0,100].
type Update struct {
	Phase   Phase   `json:"phase"`
	Percent float64 `json:"percent"`
	Label   string  `json:"label"`
}

type Func func(Update)

// Percent computes done/total as a percentage, 100 when total is zero.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Monotonic wraps fn so that within one phase reported percentages never go
// down and stay within [0,100]. A nil fn yields a no-op.
func Monotonic(fn Func) Func {
	if fn == nil {
		return func(Update) {}
	}

	var (
		mu    sync.Mutex
		phase Phase
		last  float64
	)
	return func(u Update) {
		mu.Lock()
		defer mu.Unlock()

		if u.Percent < 0 {
			u.Percent = 0
		}
		if u.Percent > 100 {
			u.Percent = 100
		}
		if u.Phase != phase {
			phase = u.Phase
			last = 0
		}
		if u.Percent < last {
			u.Percent = last
		}
		last = u.Percent
		fn(u)
	}
}

// Bar renders updates as a single terminal line.
type Bar struct {
	width      int
	writer     io.Writer
	mu         sync.Mutex
	phase      Phase
	percent    float64
	label      string
	lastUpdate time.Time
}

func NewBar(w io.Writer) *Bar {
	return &Bar{
		width:  40,
		writer: w,
	}
}

// Update records u and redraws at most every 100ms, or immediately on a
// phase change or completion.
func (b *Bar) Update(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := u.Phase != b.phase
	if changed && b.phase != "" {
		b.render()
		fmt.Fprint(b.writer, "\n")
	}
	b.phase, b.percent, b.label = u.Phase, u.Percent, u.Label

	now := time.Now()
	if changed || u.Percent >= 100 || now.Sub(b.lastUpdate) > 100*time.Millisecond {
		b.lastUpdate = now
		b.render()
	}
}

// render must be called with mu already locked
func (b *Bar) render() {
	filled := int(float64(b.width) * b.percent / 100)
	if filled > b.width {
		filled = b.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", b.width-filled)

	label := b.label
	if len(label) > 48 {
		label = "…" + label[len(label)-47:]
	}
	fmt.Fprintf(b.writer, "\r\033[K%-8s [%s] %3d%% %s", b.phase, bar, int(b.percent), label)
}

func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase == "" {
		return
	}
	b.render()
	fmt.Fprint(b.writer, "\n")
}
