package httpserver

import "testing"

func TestMimeType(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"photo.png", "image/png"},
		{"PHOTO.PNG", "image/png"},
		{"movie.mp4", "video/mp4"},
		{"page.html", "text/html; charset=utf-8"},
		{"font.woff2", "font/woff2"},
		{"blob.unknownext", "application/octet-stream"},
		{"noextension", "application/octet-stream"},
		{"trailingdot.", "application/octet-stream"},
	}
	for _, c := range cases {
		if got := MimeType(c.name); got != c.want {
			t.Fatalf("MimeType(%q) got=%q want=%q", c.name, got, c.want)
		}
	}
}

func TestExtOf(t *testing.T) {
	if got := extOf("a.tar.gz"); got != "gz" {
		t.Fatalf("extOf got=%q want=gz", got)
	}
	if got := extOf("README"); got != "" {
		t.Fatalf("extOf got=%q want empty", got)
	}
	if got := extOf("UPPER.JPG"); got != "jpg" {
		t.Fatalf("extOf got=%q want=jpg", got)
	}
}
