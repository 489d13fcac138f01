// Package filter runs per-channel digital filters over decoded frames.
package filter

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/decoder"
)

// Kind names a filter family.
type Kind int

const (
	KindButterworth Kind = iota + 1
)

const (
	MinOrder = 1
	MaxOrder = 8
)

func (k Kind) String() string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(s string) (Kind, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownFilterKind, s)
}

// Processor is the signal-processing state behind a Filter.
// Process filters len(block) channels in place; every channel holds the same
// number of samples.
type Processor interface {
	Setup(rate, center, width float64) error
	Process(block [][]float32)
}

// Factory builds a Processor for order and channel count.
type Factory func(order, channels int) Processor

var (
	factoriesMu sync.RWMutex
	kindNames   = map[Kind]string{
		KindButterworth: "butterworth",
	}
	factories = map[Kind]Factory{
		KindButterworth: func(order, channels int) Processor { return newBandPass(order, channels) },
	}
)

// Register installs the Processor factory for kind, replacing any existing one.
func Register(kind Kind, name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = factory
	kindNames[kind] = name
}

func lookup(kind Kind) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

// Filter is one registered filter: a kind and order bound to a set of 1-based channels.
type Filter struct {
	id         int
	kind       Kind
	order      int
	channels   []int
	rate       float64
	low        float64
	high       float64
	configured bool
	dsp        Processor
}

// New builds a filter. An empty channel list selects every channel.
func New(kind Kind, order int, channels ...int) (*Filter, error) {
	factory, ok := lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownFilterKind, kind)
	}
	if order < MinOrder || order > MaxOrder {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidOrder, order)
	}
	chans, err := normalizeChannels(channels)
	if err != nil {
		return nil, err
	}
	return &Filter{
		kind:     kind,
		order:    order,
		channels: chans,
		dsp:      factory(order, len(chans)),
	}, nil
}

func normalizeChannels(channels []int) ([]int, error) {
	if len(channels) == 0 {
		all := make([]int, decoder.Channels)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}
	if len(channels) > decoder.Channels {
		return nil, fmt.Errorf("%w: %d channels, at most %d", core.ErrInvalidChannel, len(channels), decoder.Channels)
	}
	seen := make(map[int]bool, len(channels))
	for _, ch := range channels {
		if ch < 1 || ch > decoder.Channels {
			return nil, fmt.Errorf("%w: %d", core.ErrInvalidChannel, ch)
		}
		if seen[ch] {
			return nil, fmt.Errorf("%w: %d listed twice", core.ErrInvalidChannel, ch)
		}
		seen[ch] = true
	}
	return slices.Clone(channels), nil
}

// Setup configures the passband and resets the filter state.
// The processor receives center = low + (high - low) and width = (high - low) / 2.
func (f *Filter) Setup(rate, low, high float64) error {
	if rate <= 0 || low < 0 || high <= low {
		return fmt.Errorf("%w: rate %g, band [%g, %g]", core.ErrInvalidBand, rate, low, high)
	}
	center := low + (high - low)
	width := (high - low) / 2
	if err := f.dsp.Setup(rate, center, width); err != nil {
		return err
	}
	f.rate, f.low, f.high = rate, low, high
	f.configured = true
	return nil
}

func (f *Filter) ID() int         { return f.id }
func (f *Filter) Kind() Kind      { return f.kind }
func (f *Filter) Order() int      { return f.order }
func (f *Filter) Channels() []int { return slices.Clone(f.channels) }

// Info is a snapshot of a filter for listing.
type Info struct {
	ID         int     `json:"id"`
	Kind       string  `json:"kind"`
	Order      int     `json:"order"`
	Channels   []int   `json:"channels"`
	Rate       float64 `json:"rate"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Configured bool    `json:"configured"`
}

func (f *Filter) info() Info {
	return Info{
		ID:         f.id,
		Kind:       f.kind.String(),
		Order:      f.order,
		Channels:   f.Channels(),
		Rate:       f.rate,
		Low:        f.low,
		High:       f.high,
		Configured: f.configured,
	}
}
