package interval

import "testing"

func TestMinutes(t *testing.T) {
	cases := []struct {
		in   Interval
		want int64
	}{
		{Int1m, 1},
		{Int1h, 60},
		{Int1d, 1440},
		{Int1w, 10080},
		{Int1M, 43200},
	}
	for _, tt := range cases {
		if got := tt.in.Minutes(); got != tt.want {
			t.Errorf("%s.Minutes() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("1h"); err != nil {
		t.Fatalf("Parse(1h) unexpected error: %v", err)
	}
	if _, err := Parse("bogus"); err == nil {
		t.Fatalf("Parse(bogus) expected error, got nil")
	}
}

func TestMilliseconds(t *testing.T) {
	if got, want := Int5m.Milliseconds(), int64(5*60_000); got != want {
		t.Errorf("Int5m.Milliseconds() = %d, want %d", got, want)
	}
}
