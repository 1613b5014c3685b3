package attribution

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "instagram substring", in: "My Instagram Story", want: LabelInstagram},
		{name: "instagram beats facebook markers", in: "instagram utm_medium:paid", want: LabelInstagram},
		{name: "bare ad-set id", in: "120226672319150138", want: LabelFacebookAds},
		{name: "ad-set id with whitespace", in: "  120226672319150138  ", want: LabelFacebookAds},
		{name: "0138 with paid", in: "campaign 0138 paid traffic", want: LabelFacebookAds},
		{name: "0138 after long number", in: "origin 12022667230138", want: LabelFacebookAds},
		{name: "0138 alone is not enough", in: "promo code 0138", want: "promo code 0138"},
		{name: "utm_medium paid", in: "utm_medium:paid", want: LabelFacebookAds},
		{name: "utm prefix with paid", in: "UTM: somesource / paid", want: LabelFacebookAds},
		{name: "facebook substring", in: "UTM: facebook / paid", want: LabelFacebookAds},
		{name: "fb ads phrase", in: "sales via fb ads", want: LabelFacebookAds},
		{name: "utm_medium cpc", in: "utm_medium:cpc", want: LabelFacebookAds},
		{name: "utm_medium social", in: "utm_medium:social", want: LabelFacebookAds},
		{name: "prefixed ad-set token", in: "origin: 120210123456789012", want: LabelFacebookAds},
		{name: "ad-set id inside text", in: "came via 120226672319150138 campaign", want: LabelFacebookAds},
		{name: "google organic untouched", in: "UTM: google / organic", want: "UTM: google / organic"},
		{name: "direct untouched", in: "Direct", want: "Direct"},
		{name: "referral untouched", in: "Referral: news.ycombinator.com", want: "Referral: news.ycombinator.com"},
		{name: "short number untouched", in: "order 12345678901234", want: "order 12345678901234"},
		{name: "empty input", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"My Instagram Story",
		"120226672319150138",
		"UTM: facebook / paid",
		"UTM: google / organic",
		"Direct",
		"Referral: example.com",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalizeCaseInsensitive(t *testing.T) {
	if got := Normalize("SALES VIA FACEBOOK"); got != LabelFacebookAds {
		t.Errorf("expected uppercase facebook input to classify as FB ADS, got %q", got)
	}
	if got := Normalize("InStAgRaM bio link"); got != LabelInstagram {
		t.Errorf("expected mixed-case instagram input to classify as Instagram, got %q", got)
	}
}
