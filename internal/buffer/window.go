package buffer

import "sort"

// Range is a buffered [Start, End) interval in seconds.
type Range struct {
	Start float64
	End   float64
}

func (r Range) Duration() float64 {
	return r.End - r.Start
}

func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Window is an ordered set of disjoint ranges. Touching or overlapping
// ranges are merged on insert.
type Window struct {
	ranges []Range
}

func NewWindow(ranges ...Range) *Window {
	w := &Window{}
	for _, r := range ranges {
		w.Add(r)
	}
	return w
}

func (w *Window) Add(r Range) {
	if r.Empty() {
		return
	}

	i := sort.Search(len(w.ranges), func(i int) bool {
		return w.ranges[i].End >= r.Start
	})

	j := i
	for j < len(w.ranges) && w.ranges[j].Start <= r.End {
		if w.ranges[j].Start < r.Start {
			r.Start = w.ranges[j].Start
		}
		if w.ranges[j].End > r.End {
			r.End = w.ranges[j].End
		}
		j++
	}

	merged := make([]Range, 0, len(w.ranges)-(j-i)+1)
	merged = append(merged, w.ranges[:i]...)
	merged = append(merged, r)
	merged = append(merged, w.ranges[j:]...)
	w.ranges = merged
}

// Remove cuts [start, end) out of the window, splitting ranges as needed.
func (w *Window) Remove(start, end float64) {
	if end <= start {
		return
	}

	out := w.ranges[:0:0]
	for _, r := range w.ranges {
		if r.End <= start || r.Start >= end {
			out = append(out, r)
			continue
		}
		if r.Start < start {
			out = append(out, Range{Start: r.Start, End: start})
		}
		if r.End > end {
			out = append(out, Range{Start: end, End: r.End})
		}
	}
	w.ranges = out
}

func (w *Window) Reset(ranges []Range) {
	w.ranges = nil
	for _, r := range ranges {
		w.Add(r)
	}
}

func (w *Window) Ranges() []Range {
	out := make([]Range, len(w.ranges))
	copy(out, w.ranges)
	return out
}

// Start returns the oldest retained timestamp.
func (w *Window) Start() (float64, bool) {
	if len(w.ranges) == 0 {
		return 0, false
	}
	return w.ranges[0].Start, true
}

func (w *Window) End() (float64, bool) {
	if len(w.ranges) == 0 {
		return 0, false
	}
	return w.ranges[len(w.ranges)-1].End, true
}

func (w *Window) Contains(t float64) bool {
	for _, r := range w.ranges {
		if t >= r.Start && t < r.End {
			return true
		}
	}
	return false
}

func (w *Window) Len() int {
	return len(w.ranges)
}

func (w *Window) Duration() float64 {
	var total float64
	for _, r := range w.ranges {
		total += r.Duration()
	}
	return total
}
