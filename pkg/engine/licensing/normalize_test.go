package licensing

import "testing"

func TestNormalize(t *testing.T) {
	n := NewNormalizer(nil)

	cases := []struct {
		in, want string
	}{
		{"GPLv2+", "GPL-2.0-or-later"},
		{"GPLv3+ and GPLv3+ with exceptions", "GPL-3.0-or-later AND GPLv3+ with exceptions"},
		{"MIT", "MIT"},
		{"ASL 2.0", "Apache-2.0"},
		{"(GPLv2+ or MIT)", "(GPL-2.0-or-later OR MIT)"},
		{"BSD and zlib", "BSD-3-Clause AND Zlib"},
		{"Mulan PSL v2", "MulanPSL-2.0"},
		{"Totally Custom License", "Totally Custom License"},
		{"", ""},
	}
	for _, c := range cases {
		if got := n.Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeOverridesWin(t *testing.T) {
	n := NewNormalizer(map[string]string{"BSD": "BSD-2-Clause", "Weird": "LicenseRef-weird"})
	if got := n.Normalize("BSD"); got != "BSD-2-Clause" {
		t.Errorf("override ignored: %q", got)
	}
	if got := n.Normalize("weird or MIT"); got != "LicenseRef-weird OR MIT" {
		t.Errorf("got %q", got)
	}
}
