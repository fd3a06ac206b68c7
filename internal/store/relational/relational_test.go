package relational

import "testing"

func TestIsTransient(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"connection reset by peer", true},
		{"i/o timeout", true},
		{"read: EOF", true},
		{"unique constraint violation", false},
		{"syntax error at or near", false},
	}
	for _, c := range cases {
		if got := isTransient(errString(c.msg)); got != c.want {
			t.Errorf("isTransient(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
