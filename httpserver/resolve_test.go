package httpserver

import "testing"

func TestDecodePath(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/a.txt", "/a.txt", true},
		{"/a.txt?x=1&y=2", "/a.txt", true},
		{"/a%20b.txt", "/a b.txt", true},
		{"/%2e%2e/a.txt", "/../a.txt", true},
		{"", "/", true},
		{"/%zz", "", false},
	}
	for _, c := range cases {
		got, err := decodePath(c.raw)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("decodePath(%q) got=%q err=%v want=%q", c.raw, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Fatalf("decodePath(%q) expected error", c.raw)
		}
	}
}

func TestResolveRelative(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", "", true},
		{"", "", true},
		{"/a.txt", "a.txt", true},
		{"/sub/b.png", "sub/b.png", true},
		{"/sub/../a.txt", "a.txt", true},
		{"sub//b.png", "sub/b.png", true},
		{"/./", "", true},
		{"//etc/passwd", "etc/passwd", true},
		{"/..", "", false},
		{"/../x", "", false},
		{"/sub/../../x", "", false},
		{"../../../../etc/passwd", "", false},
	}
	for _, c := range cases {
		got, err := resolveRelative(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("resolveRelative(%q) got=%q err=%v want=%q", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Fatalf("resolveRelative(%q) expected error, got %q", c.in, got)
		}
	}
}
