package attribution

import (
	"testing"

	"github.com/shoplens/origin-report/internal/models"
)

func TestRecordLabel(t *testing.T) {
	tests := []struct {
		name string
		rec  models.AttributionRecord
		want string
	}{
		{
			name: "stored origin wins",
			rec:  models.AttributionRecord{Origin: "UTM: tiktok / cpc", UTMSource: "ignored"},
			want: "UTM: tiktok / cpc",
		},
		{
			name: "source and medium",
			rec:  models.AttributionRecord{UTMSource: "facebook", UTMMedium: "paid"},
			want: "UTM: facebook / paid",
		},
		{
			name: "source alone",
			rec:  models.AttributionRecord{UTMSource: "newsletter"},
			want: "UTM: newsletter",
		},
		{
			name: "medium alone",
			rec:  models.AttributionRecord{UTMMedium: "cpc"},
			want: "UTM: cpc",
		},
		{
			name: "campaign alone",
			rec:  models.AttributionRecord{UTMCampaign: "spring-sale"},
			want: "UTM: spring-sale",
		},
		{
			name: "utm type with fields",
			rec:  models.AttributionRecord{SourceType: models.SourceTypeUTM, UTMSource: "fb", UTMMedium: "paid"},
			want: "UTM: fb / paid",
		},
		{
			name: "organic type",
			rec:  models.AttributionRecord{SourceType: models.SourceTypeOrganic, UTMSource: "google"},
			want: LabelOrganic,
		},
		{
			name: "referral type with host",
			rec:  models.AttributionRecord{SourceType: models.SourceTypeReferral, ReferrerHost: "blog.example.org"},
			want: "Referral: blog.example.org",
		},
		{
			name: "referral type without host",
			rec:  models.AttributionRecord{SourceType: models.SourceTypeReferral},
			want: "Referral: Unknown",
		},
		{
			name: "direct type",
			rec:  models.AttributionRecord{SourceType: models.SourceTypeDirect},
			want: LabelDirect,
		},
		{
			name: "admin type",
			rec:  models.AttributionRecord{SourceType: models.SourceTypeAdmin},
			want: "Admin",
		},
		{
			name: "unexpected type falls back to template",
			rec:  models.AttributionRecord{SourceType: "mobile_app", UTMSource: "app"},
			want: "mobile_app: app",
		},
		{
			name: "unexpected type without source",
			rec:  models.AttributionRecord{SourceType: "mobile_app"},
			want: "mobile_app: Unknown",
		},
		{
			name: "referrer host only",
			rec:  models.AttributionRecord{ReferrerHost: "example.net"},
			want: "Referral: example.net",
		},
		{
			name: "empty record",
			rec:  models.AttributionRecord{},
			want: LabelUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordLabel(&tt.rec); got != tt.want {
				t.Errorf("RecordLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
