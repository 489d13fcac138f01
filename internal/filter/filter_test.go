package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/protocol"
)

const kindScale Kind = 99

// scaler doubles every sample and remembers its setup arguments.
type scaler struct {
	rate, center, width float64
	calls               int
}

func (s *scaler) Setup(rate, center, width float64) error {
	s.rate, s.center, s.width = rate, center, width
	return nil
}

func (s *scaler) Process(block [][]float32) {
	s.calls++
	for _, ch := range block {
		for i := range ch {
			ch[i] *= 2
		}
	}
}

var lastScaler *scaler

func init() {
	Register(kindScale, "scale", func(order, channels int) Processor {
		lastScaler = &scaler{}
		return lastScaler
	})
}

func testFrame(value func(rec, ch int) float64) *decoder.Frame {
	n := protocol.Rate250.RecordsPerFrame()
	f := &decoder.Frame{Rate: protocol.Rate250, Raw: make([]decoder.Record, n), Filtered: make([]decoder.Record, n)}
	for rec := 0; rec < n; rec++ {
		for ch := 0; ch < decoder.Channels; ch++ {
			f.Raw[rec][ch] = value(rec, ch)
		}
	}
	copy(f.Filtered, f.Raw)
	return f
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		order    int
		channels []int
		err      error
	}{
		{"unknown kind", Kind(42), 2, nil, core.ErrUnknownFilterKind},
		{"order zero", KindButterworth, 0, nil, core.ErrInvalidOrder},
		{"order nine", KindButterworth, 9, nil, core.ErrInvalidOrder},
		{"channel zero", KindButterworth, 2, []int{0}, core.ErrInvalidChannel},
		{"channel nine", KindButterworth, 2, []int{9}, core.ErrInvalidChannel},
		{"duplicate", KindButterworth, 2, []int{1, 1}, core.ErrInvalidChannel},
		{"too many", KindButterworth, 2, []int{1, 2, 3, 4, 5, 6, 7, 8, 1}, core.ErrInvalidChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.order, tt.channels...)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	f, err := New(KindButterworth, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, f.Channels())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Butterworth")
	require.NoError(t, err)
	assert.Equal(t, KindButterworth, k)
	assert.Equal(t, "butterworth", k.String())

	_, err = ParseKind("chebyshev")
	assert.ErrorIs(t, err, core.ErrUnknownFilterKind)
}

func TestSetupPassesCenterAndWidth(t *testing.T) {
	f, err := New(kindScale, 2, 1)
	require.NoError(t, err)
	require.NoError(t, f.Setup(500, 1, 45))

	assert.Equal(t, 500.0, lastScaler.rate)
	assert.Equal(t, 45.0, lastScaler.center)
	assert.Equal(t, 22.0, lastScaler.width)

	for _, band := range [][3]float64{{0, 1, 2}, {250, 10, 10}, {250, 20, 5}, {250, -1, 5}} {
		assert.ErrorIs(t, f.Setup(band[0], band[1], band[2]), core.ErrInvalidBand)
	}
}

func TestPipelineHandles(t *testing.T) {
	p := NewPipeline()

	a, err := p.Add(KindButterworth, 2, 1, 2)
	require.NoError(t, err)
	b, err := p.Add(KindButterworth, 4)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, p.Len())

	require.NoError(t, p.Setup(a.ID(), 250, 1, 30))
	list := p.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID(), list[0].ID)
	assert.True(t, list[0].Configured)
	assert.False(t, list[1].Configured)
	assert.Equal(t, "butterworth", list[1].Kind)

	require.NoError(t, p.Remove(a.ID()))
	assert.ErrorIs(t, p.Remove(a.ID()), core.ErrFilterNotFound)
	assert.ErrorIs(t, p.Setup(a.ID(), 250, 1, 30), core.ErrFilterNotFound)

	p.RemoveAll()
	assert.Equal(t, 0, p.Len())

	c, err := p.Add(KindButterworth, 1)
	require.NoError(t, err)
	assert.Greater(t, c.ID(), b.ID(), "handles are never reused")
}

func TestApplyTouchesOnlyListedChannels(t *testing.T) {
	p := NewPipeline()
	f, err := p.Add(kindScale, 1, 2, 5)
	require.NoError(t, err)
	require.NoError(t, p.Setup(f.ID(), 250, 1, 10))

	fr := testFrame(func(rec, ch int) float64 { return float64(ch+1) * 1e-6 })
	p.Apply(fr)

	for rec := 0; rec < fr.Records(); rec++ {
		for ch := 0; ch < decoder.Channels; ch++ {
			want := fr.Raw[rec][ch]
			if ch == 1 || ch == 4 {
				want = float64(float32(fr.Raw[rec][ch]) * 2)
			}
			assert.InDelta(t, want, fr.Filtered[rec][ch], 1e-12, "rec %d ch %d", rec, ch+1)
		}
	}
}

func TestApplyClampsSaturatedSamples(t *testing.T) {
	p := NewPipeline()
	f, err := p.Add(kindScale, 1, 1)
	require.NoError(t, err)
	require.NoError(t, p.Setup(f.ID(), 250, 1, 10))

	fr := testFrame(func(rec, ch int) float64 {
		if rec%2 == 0 {
			return 0.5
		}
		return 0.1
	})
	p.Apply(fr)

	assert.Equal(t, 0.0, fr.Filtered[0][0])
	assert.InDelta(t, 0.2, fr.Filtered[1][0], 1e-6)
	assert.Equal(t, 0.5, fr.Raw[0][0], "raw samples are never modified")
}

func TestApplySkipsUnconfigured(t *testing.T) {
	p := NewPipeline()
	_, err := p.Add(kindScale, 1, 1)
	require.NoError(t, err)

	fr := testFrame(func(rec, ch int) float64 { return 1e-5 })
	p.Apply(fr)

	assert.Equal(t, 0, lastScaler.calls)
	assert.Equal(t, fr.Raw, fr.Filtered)
}

func TestApplyOrder(t *testing.T) {
	p := NewPipeline()
	first, err := p.Add(kindScale, 1, 3)
	require.NoError(t, err)
	require.NoError(t, p.Setup(first.ID(), 250, 1, 10))
	second, err := p.Add(KindButterworth, 2, 3)
	require.NoError(t, err)
	require.NoError(t, p.Setup(second.ID(), 250, 1, 10))

	fr := testFrame(func(rec, ch int) float64 { return 1e-5 })
	p.Apply(fr)

	// The later filter owns the output of a shared channel.
	assert.NotEqual(t, float64(float32(1e-5)*2), fr.Filtered[0][2])
}

// amplitude returns the peak output of the band-pass for a sine at freq,
// ignoring the first half of the run as transient.
func amplitude(t *testing.T, order int, rate, lo, hi, freq float64) float64 {
	t.Helper()
	bp := newBandPass(order, 1)
	require.NoError(t, bp.Setup(rate, (lo+hi)/2, (hi-lo)/2))

	samples := make([]float32, int(rate)*4)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
	}
	bp.Process([][]float32{samples})

	peak := 0.0
	for _, v := range samples[len(samples)/2:] {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	return peak
}

func TestBandPassResponse(t *testing.T) {
	for _, order := range []int{1, 2, 3, 4} {
		inBand := amplitude(t, order, 250, 5, 20, 10)
		assert.Greater(t, inBand, 0.6, "order %d passband", order)
		assert.Less(t, inBand, 1.05, "order %d passband", order)
	}

	assert.Less(t, amplitude(t, 4, 250, 5, 20, 100), 0.05, "stopband above")
	assert.Less(t, amplitude(t, 4, 250, 5, 20, 0.5), 0.05, "stopband below")
}

func TestBandPassSetupRejects(t *testing.T) {
	bp := newBandPass(2, 1)
	assert.ErrorIs(t, bp.Setup(250, 200, 10), core.ErrInvalidBand)
	assert.ErrorIs(t, bp.Setup(250, 10, 0), core.ErrInvalidBand)

	// Upper edge past Nyquist leaves only the high-pass half.
	require.NoError(t, bp.Setup(250, 100, 50))
	assert.Len(t, bp.sections, 1)
}
