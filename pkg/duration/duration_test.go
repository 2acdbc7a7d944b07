package duration

import (
	"math"
	"testing"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0.34, "340 ms"},
		{0, "0 ms"},
		{3.14159, "3.14 s"},
		{59.99, "59.99 s"},
		{125, "2m 5s"},
		{3789, "1h 3m 9s"},
		{-1, "-"},
		{math.NaN(), "-"},
		{math.Inf(1), "-"},
	}
	for _, c := range cases {
		if got := Format(c.seconds); got != c.want {
			t.Fatalf("Format(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}
