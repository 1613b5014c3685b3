package attribution

import (
	"fmt"

	"github.com/shoplens/origin-report/internal/models"
)

// RecordLabel derives the raw origin label for one attribution record,
// before normalization. The legacy stored string wins when present; records
// from the dedicated scheme go through source_type templates; UTM records
// follow the source+medium > source > medium > campaign precedence.
func RecordLabel(rec *models.AttributionRecord) string {
	if rec.Origin != "" {
		return rec.Origin
	}

	switch rec.SourceType {
	case "", models.SourceTypeUTM:
		// UTM precedence below.
	case models.SourceTypeOrganic:
		return LabelOrganic
	case models.SourceTypeReferral:
		host := rec.ReferrerHost
		if host == "" {
			host = rec.UTMSource
		}
		if host == "" {
			host = LabelUnknown
		}
		return "Referral: " + host
	case models.SourceTypeDirect:
		return LabelDirect
	case models.SourceTypeAdmin:
		return "Admin"
	default:
		source := rec.UTMSource
		if source == "" {
			source = LabelUnknown
		}
		return fmt.Sprintf("%s: %s", rec.SourceType, source)
	}

	switch {
	case rec.UTMSource != "" && rec.UTMMedium != "":
		return "UTM: " + rec.UTMSource + " / " + rec.UTMMedium
	case rec.UTMSource != "":
		return "UTM: " + rec.UTMSource
	case rec.UTMMedium != "":
		return "UTM: " + rec.UTMMedium
	case rec.UTMCampaign != "":
		return "UTM: " + rec.UTMCampaign
	}

	if rec.ReferrerHost != "" {
		return "Referral: " + rec.ReferrerHost
	}
	return LabelUnknown
}
