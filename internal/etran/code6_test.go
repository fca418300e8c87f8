package etran

import "testing"

func TestCode6(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{12345, "123450"},
		{0, "000000"},
	}
	for _, c := range cases {
		if got := code6(c.in); got != c.want {
			t.Errorf("code6(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCheckDigit(t *testing.T) {
	if got := checkDigit(12345, 5, 1); got != (5*5+4*4+3*3+2*2+1*1)%11 {
		t.Errorf("checkDigit mismatch: got %d", got)
	}
}
