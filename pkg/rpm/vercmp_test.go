package rpm

import "testing"

func TestRpmvercmp(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "2.0", -1},
		{"2.0.1", "2.0", 1},
		{"5.5p1", "5.5p2", -1},
		{"5.5p10", "5.5p2", 1},
		{"10xyz", "10.1xyz", -1},
		{"xyz10", "xyz10.1", -1},
		{"1.05", "1.5", 0},
		{"1.0010", "1.9", 1},
		{"fc5", "FC5", 1},
		{"2a", "2.0", -1},
		{"1.5~beta", "1.5", -1},
		{"1.5~beta1", "1.5~beta2", -1},
		{"1.5^post1", "1.5", 1},
		{"1.5^post1", "1.5.1", -1},
	}
	for _, c := range cases {
		if got := rpmvercmp(c.a, c.b); got != c.want {
			t.Errorf("rpmvercmp(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := rpmvercmp(c.b, c.a); got != -c.want {
			t.Errorf("rpmvercmp(%q, %q) = %d, want %d", c.b, c.a, got, -c.want)
		}
	}
}

func TestCompareEVR(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0-1", "1.0-1", 0},
		{"1.0-1", "1.0-2", -1},
		{"1.0-1.oe2403", "1.0-1.oe2309", 1},
		{"0:1.0-1", "1.0-1", 0},
		{"1:1.0-1", "2.0-1", 1},
		{"2:0.9-1", "1:9.9-9", 1},
		{"1.0", "1.0-1", -1},
	}
	for _, c := range cases {
		if got := CompareEVR(c.a, c.b); got != c.want {
			t.Errorf("CompareEVR(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
