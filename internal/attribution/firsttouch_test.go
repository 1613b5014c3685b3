package attribution

import (
	"net/url"
	"testing"
)

func TestDeriveOrigin(t *testing.T) {
	const site = "shop.example.com"

	tests := []struct {
		name     string
		query    string
		referrer string
		want     string
	}{
		{
			name:  "utm source and medium",
			query: "utm_source=facebook&utm_medium=paid",
			want:  "UTM: facebook / paid",
		},
		{
			name:  "utm source only",
			query: "utm_source=newsletter",
			want:  "UTM: newsletter",
		},
		{
			name:     "utm wins over referrer",
			query:    "utm_source=fb",
			referrer: "https://www.google.com/search",
			want:     "UTM: fb",
		},
		{
			name:     "google referrer is organic",
			referrer: "https://www.google.com/search?q=shoes",
			want:     LabelOrganic,
		},
		{
			name:     "duckduckgo referrer is organic",
			referrer: "https://duckduckgo.com/",
			want:     LabelOrganic,
		},
		{
			name:     "external referrer",
			referrer: "https://news.ycombinator.com/item?id=1",
			want:     "Referral: news.ycombinator.com",
		},
		{
			name:     "www referrer is stripped",
			referrer: "https://www.blog.example.org/post",
			want:     "Referral: blog.example.org",
		},
		{
			name:     "self referrer is direct",
			referrer: "https://shop.example.com/category/shoes",
			want:     LabelDirect,
		},
		{
			name:     "www self referrer is direct",
			referrer: "https://www.shop.example.com/",
			want:     LabelDirect,
		},
		{
			name: "no signal is direct",
			want: LabelDirect,
		},
		{
			name:     "unparseable referrer is direct",
			referrer: "not a url",
			want:     LabelDirect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("bad query fixture: %v", err)
			}
			if got := DeriveOrigin(q, tt.referrer, site); got != tt.want {
				t.Errorf("DeriveOrigin(%q, %q) = %q, want %q", tt.query, tt.referrer, got, tt.want)
			}
		})
	}
}

func TestDeriveOriginMatchesNormalizeVocabulary(t *testing.T) {
	// A paid-social first touch must land in the FB ADS bucket after
	// normalization; an organic one must pass through untouched.
	q, _ := url.ParseQuery("utm_source=facebook&utm_medium=paid")
	label := DeriveOrigin(q, "", "shop.example.com")
	if got := Normalize(label); got != LabelFacebookAds {
		t.Errorf("normalized paid facebook touch = %q, want %q", got, LabelFacebookAds)
	}

	q, _ = url.ParseQuery("utm_source=google&utm_medium=organic")
	label = DeriveOrigin(q, "", "shop.example.com")
	if got := Normalize(label); got != label {
		t.Errorf("organic google touch should be untouched by Normalize, got %q", got)
	}
}
