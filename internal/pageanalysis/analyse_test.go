package pageanalysis

import (
	"testing"

	"github.com/cametumbling/sitecrawler/internal/siteurl"
	"github.com/cametumbling/sitecrawler/internal/wire"
)

func TestAnalyse(t *testing.T) {
	page := siteurl.URL{Scheme: "http", Domain: "ex.com", Path: "/index.html"}

	tests := []struct {
		name string
		body string
		want wire.PageStats
	}{
		{
			name: "counts tags",
			body: `<html><body><img src="a.png"><img src="b.png"><form></form></body></html>`,
			want: wire.PageStats{Path: "/index.html", Scheme: "http", Domain: "ex.com", Images: 2, Forms: 1},
		},
		{
			name: "extracts same-site link",
			body: `<a href="/about.html">About</a>`,
			want: wire.PageStats{Path: "/index.html", Scheme: "http", Domain: "ex.com", Links: []string{"/about.html"}},
		},
		{
			name: "drops link to different domain",
			body: `<a href="http://other.com/x">x</a>`,
			want: wire.PageStats{Path: "/index.html", Scheme: "http", Domain: "ex.com"},
		},
		{
			name: "keeps scheme-relative link with matching domain",
			body: `<a href="//ex.com/y">y</a>`,
			want: wire.PageStats{Path: "/index.html", Scheme: "http", Domain: "ex.com", Links: []string{"/y"}},
		},
		{
			name: "extracts headings in order",
			body: `<h1>Title</h1><p>text</p><h2>Subtitle</h2>`,
			want: wire.PageStats{
				Path: "/index.html", Scheme: "http", Domain: "ex.com",
				Headings: []wire.Heading{{Level: 1, Text: "Title"}, {Level: 2, Text: "Subtitle"}},
			},
		},
		{
			name: "mismatched heading tags are not counted",
			body: `<h1>Broken</h2>`,
			want: wire.PageStats{Path: "/index.html", Scheme: "http", Domain: "ex.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyse(tt.body, page)
			if got.Images != tt.want.Images || got.Forms != tt.want.Forms {
				t.Errorf("Analyse() counts = (%d,%d), want (%d,%d)", got.Images, got.Forms, tt.want.Images, tt.want.Forms)
			}
			if len(got.Links) != len(tt.want.Links) {
				t.Fatalf("Analyse() links = %v, want %v", got.Links, tt.want.Links)
			}
			for i := range got.Links {
				if got.Links[i] != tt.want.Links[i] {
					t.Errorf("Analyse() link[%d] = %q, want %q", i, got.Links[i], tt.want.Links[i])
				}
			}
			if len(got.Headings) != len(tt.want.Headings) {
				t.Fatalf("Analyse() headings = %v, want %v", got.Headings, tt.want.Headings)
			}
			for i := range got.Headings {
				if got.Headings[i] != tt.want.Headings[i] {
					t.Errorf("Analyse() heading[%d] = %+v, want %+v", i, got.Headings[i], tt.want.Headings[i])
				}
			}
		})
	}
}
