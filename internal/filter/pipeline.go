package filter

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/metrics"
)

// ClampMicrovolts is the magnitude at which a sample is treated as saturated
// and fed to the filters as zero.
const ClampMicrovolts = 374000

// Pipeline is an ordered list of filters applied to every frame.
type Pipeline struct {
	mu      sync.Mutex
	nextID  int
	filters []*Filter
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{nextID: 1}
}

// Add builds a filter and appends it. The returned filter's ID is its handle.
func (p *Pipeline) Add(kind Kind, order int, channels ...int) (*Filter, error) {
	f, err := New(kind, order, channels...)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f.id = p.nextID
	p.nextID++
	p.filters = append(p.filters, f)
	return f, nil
}

// Setup configures the filter with the given handle.
func (p *Pipeline) Setup(id int, rate, low, high float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.find(id)
	if f == nil {
		return fmt.Errorf("%w: %d", core.ErrFilterNotFound, id)
	}
	return f.Setup(rate, low, high)
}

// Remove deletes the filter with the given handle.
func (p *Pipeline) Remove(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.IndexFunc(p.filters, func(f *Filter) bool { return f.id == id })
	if i < 0 {
		return fmt.Errorf("%w: %d", core.ErrFilterNotFound, id)
	}
	p.filters = slices.Delete(p.filters, i, i+1)
	return nil
}

// RemoveAll deletes every filter.
func (p *Pipeline) RemoveAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = nil
}

// Len returns the number of installed filters.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.filters)
}

// List returns the installed filters in application order.
func (p *Pipeline) List() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Info, 0, len(p.filters))
	for _, f := range p.filters {
		out = append(out, f.info())
	}
	return out
}

func (p *Pipeline) find(id int) *Filter {
	for _, f := range p.filters {
		if f.id == id {
			return f
		}
	}
	return nil
}

// Apply runs every configured filter, in insertion order, over its own
// channels of fr. Each filter reads the raw samples and writes the filtered
// ones; channels a filter does not list are left alone.
func (p *Pipeline) Apply(fr *decoder.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.filters) == 0 {
		return
	}
	start := time.Now()

	n := fr.Records()
	for _, f := range p.filters {
		if !f.configured {
			continue
		}
		block := make([][]float32, len(f.channels))
		for i, ch := range f.channels {
			samples := make([]float32, n)
			for rec := 0; rec < n; rec++ {
				samples[rec] = clamp(fr.Raw[rec][ch-1])
			}
			block[i] = samples
		}

		f.dsp.Process(block)

		for i, ch := range f.channels {
			for rec := 0; rec < n; rec++ {
				fr.Filtered[rec][ch-1] = float64(block[i][rec])
			}
		}
	}

	metrics.FilterDuration.Observe(time.Since(start).Seconds())
}

func clamp(v float64) float32 {
	if math.Abs(v*1e6) >= ClampMicrovolts {
		return 0
	}
	return float32(v)
}
