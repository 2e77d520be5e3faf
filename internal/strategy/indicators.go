package strategy

import "math"

// SMA is a simple moving average over a fixed window.
type SMA struct {
	period int
	window []float64
	next   int
	count  int
	sum    float64
}

// NewSMA creates a simple moving average with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		window: make([]float64, period),
	}
}

// Add feeds a new value into the window.
func (s *SMA) Add(v float64) {
	if s.count >= s.period {
		s.sum -= s.window[s.next]
	}
	s.window[s.next] = v
	s.sum += v
	s.next = (s.next + 1) % s.period
	s.count++
}

// Ready reports whether the window is full.
func (s *SMA) Ready() bool {
	return s.count >= s.period
}

// Value returns the current average. Only meaningful when Ready.
func (s *SMA) Value() float64 {
	return s.sum / float64(s.period)
}

// RSI is Wilder's relative strength index.
type RSI struct {
	period    int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	count     int
}

// NewRSI creates an RSI with the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Add feeds a new close into the indicator.
func (r *RSI) Add(close float64) {
	r.count++
	if r.count == 1 {
		r.prevClose = close
		return
	}

	gain, loss := 0.0, 0.0
	if diff := close - r.prevClose; diff > 0 {
		gain = diff
	} else {
		loss = -diff
	}
	r.prevClose = close

	// The first `period` changes use a plain average, then Wilder smoothing.
	if r.count <= r.period+1 {
		n := float64(r.count - 1)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
		return
	}
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

// Ready reports whether enough closes have been seen to produce a value.
func (r *RSI) Ready() bool {
	return r.count > r.period
}

// Value returns the current RSI in [0, 100]. Only meaningful when Ready.
func (r *RSI) Value() float64 {
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// Bollinger computes Bollinger bands: an SMA middle line with upper and
// lower bands at stdDevMult population standard deviations.
type Bollinger struct {
	period     int
	stdDevMult float64
	window     []float64
	next       int
	count      int
}

// NewBollinger creates Bollinger bands with the given period and standard
// deviation multiplier.
func NewBollinger(period int, stdDevMult float64) *Bollinger {
	return &Bollinger{
		period:     period,
		stdDevMult: stdDevMult,
		window:     make([]float64, period),
	}
}

// Add feeds a new value into the window.
func (b *Bollinger) Add(v float64) {
	b.window[b.next] = v
	b.next = (b.next + 1) % b.period
	b.count++
}

// Ready reports whether the window is full.
func (b *Bollinger) Ready() bool {
	return b.count >= b.period
}

// Middle returns the middle band (SMA). Only meaningful when Ready.
func (b *Bollinger) Middle() float64 {
	sum := 0.0
	for _, v := range b.window {
		sum += v
	}
	return sum / float64(b.period)
}

// Upper returns the upper band. Only meaningful when Ready.
func (b *Bollinger) Upper() float64 {
	return b.Middle() + b.stdDevMult*b.stdDev()
}

// Lower returns the lower band. Only meaningful when Ready.
func (b *Bollinger) Lower() float64 {
	return b.Middle() - b.stdDevMult*b.stdDev()
}

func (b *Bollinger) stdDev() float64 {
	mean := b.Middle()
	sum := 0.0
	for _, v := range b.window {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(b.period))
}
