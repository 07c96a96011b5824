package buffer

import (
	"reflect"
	"testing"
)

func TestWindowAdd(t *testing.T) {
	tests := []struct {
		name     string
		add      []Range
		expected []Range
	}{
		{
			name:     "disjoint kept ordered",
			add:      []Range{{4, 6}, {0, 2}},
			expected: []Range{{0, 2}, {4, 6}},
		},
		{
			name:     "touching merged",
			add:      []Range{{0, 1}, {1, 2}, {2, 3}},
			expected: []Range{{0, 3}},
		},
		{
			name:     "overlap merged",
			add:      []Range{{0, 5}, {3, 8}},
			expected: []Range{{0, 8}},
		},
		{
			name:     "bridge joins neighbours",
			add:      []Range{{0, 1}, {4, 5}, {8, 9}, {0.5, 8.5}},
			expected: []Range{{0, 9}},
		},
		{
			name:     "empty ignored",
			add:      []Range{{3, 3}, {5, 4}},
			expected: []Range{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(tt.add...)
			got := w.Ranges()
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestWindowRemove(t *testing.T) {
	w := NewWindow(Range{0, 10}, Range{20, 30})

	w.Remove(5, 25)

	expected := []Range{{0, 5}, {25, 30}}
	if got := w.Ranges(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}

	w.Remove(-1, 100)
	if w.Len() != 0 {
		t.Errorf("expected empty window, got %v", w.Ranges())
	}
}

func TestWindowStartEnd(t *testing.T) {
	w := NewWindow()
	if _, ok := w.Start(); ok {
		t.Error("expected no start on empty window")
	}

	w.Add(Range{2, 4})
	w.Add(Range{6, 9})

	if start, _ := w.Start(); start != 2 {
		t.Errorf("expected start 2, got %v", start)
	}
	if end, _ := w.End(); end != 9 {
		t.Errorf("expected end 9, got %v", end)
	}
	if !w.Contains(3) || w.Contains(5) || w.Contains(9) {
		t.Error("contains mismatch")
	}
	if d := w.Duration(); d != 5 {
		t.Errorf("expected duration 5, got %v", d)
	}
}
