package models

import (
	"fmt"
	"time"
)

// Scheme identifies which storage scheme attribution rows come from.
type Scheme string

const (
	// SchemeAttributionTable is the dedicated order-attribution table.
	SchemeAttributionTable Scheme = "attribution_table"
	// SchemeOrderMeta is the HPOS order-meta table with wc_order_attribution_* keys.
	SchemeOrderMeta Scheme = "order_meta"
	// SchemePostMeta is the legacy post-meta table with _utm_* keys.
	SchemePostMeta Scheme = "post_meta"
	// SchemePYS is the PixelYourSite enrichment blob stored in order meta.
	SchemePYS Scheme = "pys"
	// SchemeLegacyField is the custom origin-cookie meta field. Always available
	// as the final fallback, even with zero rows.
	SchemeLegacyField Scheme = "legacy_field"
)

// SourceType classifies a visit at recording time.
type SourceType string

const (
	SourceTypeUTM      SourceType = "utm"
	SourceTypeOrganic  SourceType = "organic"
	SourceTypeReferral SourceType = "referral"
	SourceTypeDirect   SourceType = "direct"
	SourceTypeAdmin    SourceType = "admin"
	SourceTypeOther    SourceType = "other"
)

// AttributionRecord is one raw attribution row for one order, produced
// transiently per reporting run from whichever scheme is active.
type AttributionRecord struct {
	OrderID    int64      `json:"order_id"`
	SourceType SourceType `json:"source_type,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`

	ReferrerHost string `json:"referrer_host,omitempty"`

	// Origin carries the stored origin string for the legacy-field scheme.
	Origin string `json:"origin,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasUTM reports whether any UTM dimension is populated.
func (r *AttributionRecord) HasUTM() bool {
	return r.UTMSource != "" || r.UTMMedium != "" || r.UTMCampaign != "" ||
		r.UTMTerm != "" || r.UTMContent != ""
}

// DateRange is an inclusive reporting window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Key returns the ad-spend lookup key for the range, built from the
// inclusive dates the operator submitted, e.g. "2024-03-01_to_2024-03-31"
// for March. End is exclusive internally, so the last covered day is one
// day back from it.
func (d DateRange) Key() string {
	return fmt.Sprintf("%s_to_%s",
		d.Start.Format("2006-01-02"),
		d.End.AddDate(0, 0, -1).Format("2006-01-02"),
	)
}

// IsDay reports whether the range lies entirely within the given calendar
// day. End is exclusive, so a full-day range ends at the next midnight.
func (d DateRange) IsDay(day time.Time) bool {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	return d.Start.Before(d.End) && !d.Start.Before(dayStart) && !d.End.After(dayEnd)
}

// UTMFilters holds per-dimension allow-lists. An empty list means no
// filtering on that dimension; non-empty lists are ORed within a dimension
// and ANDed across dimensions.
type UTMFilters struct {
	Sources   []string `json:"sources,omitempty"`
	Mediums   []string `json:"mediums,omitempty"`
	Campaigns []string `json:"campaigns,omitempty"`
	Terms     []string `json:"terms,omitempty"`
	Contents  []string `json:"contents,omitempty"`
}

// IsEmpty reports whether no dimension is filtered.
func (f UTMFilters) IsEmpty() bool {
	return len(f.Sources) == 0 && len(f.Mediums) == 0 && len(f.Campaigns) == 0 &&
		len(f.Terms) == 0 && len(f.Contents) == 0
}

// Match reports whether the record passes every dimension's allow-list.
func (f UTMFilters) Match(r *AttributionRecord) bool {
	return matchDimension(r.UTMSource, f.Sources) &&
		matchDimension(r.UTMMedium, f.Mediums) &&
		matchDimension(r.UTMCampaign, f.Campaigns) &&
		matchDimension(r.UTMTerm, f.Terms) &&
		matchDimension(r.UTMContent, f.Contents)
}

func matchDimension(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// OriginBucket is one aggregation row: a normalized origin label and the
// number of orders credited to it.
type OriginBucket struct {
	Label      string `json:"label"`
	OrderCount int    `json:"order_count"`
}

// Order is the minimal order shape the reporting core needs.
type Order struct {
	ID         int64     `json:"id"`
	Status     string    `json:"status"`
	Origin     string    `json:"origin,omitempty"`
	CustomerIP string    `json:"customer_ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AdSpendEntry maps a date-range key to a manually entered spend amount.
type AdSpendEntry struct {
	RangeKey  string    `json:"range_key"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ROASResult holds spend-efficiency metrics derived from aggregated
// Facebook-origin counts. Never persisted.
type ROASResult struct {
	FacebookOrders  int     `json:"facebook_orders"`
	InstagramOrders int     `json:"instagram_orders"`
	FacebookSales   float64 `json:"facebook_sales"`
	AdSpend         float64 `json:"ad_spend"`
	ROAS            float64 `json:"roas"`
	CostPerOrder    float64 `json:"cost_per_order"`
	ProfitPerOrder  float64 `json:"profit_per_order"`
	TotalProfit     float64 `json:"total_profit"`
	ProfitMargin    float64 `json:"profit_margin"`

	// HasFacebookSales gates whether the ROAS section is rendered at all.
	HasFacebookSales bool `json:"has_facebook_sales"`
}

// TouchEvent is one raw first-touch visit, written to the touch log.
type TouchEvent struct {
	ID         string    `json:"id"`
	VisitorID  string    `json:"visitor_id"`
	Origin     string    `json:"origin"`
	LandingURL string    `json:"landing_url"`
	Referrer   string    `json:"referrer,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	GeoCountry string    `json:"geo_country,omitempty"`
	GeoCity    string    `json:"geo_city,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TimeSeriesPoint is one day of per-origin order counts.
type TimeSeriesPoint struct {
	Date   string           `json:"date"`
	Counts map[string]int64 `json:"counts"`
}

// VisitBucket is one aggregation row from the touch log.
type VisitBucket struct {
	Origin string `json:"origin"`
	Visits int64  `json:"visits"`
}
