package attribution

import (
	"encoding/json"
	"regexp"
	"strings"
)

// PYS enrichment blobs arrive either as a structured mapping or as a
// serialized-string encoding of one (PHP serialize or JSON). Inside the
// mapping, pys_utm is a |-delimited key:value string.

var utmKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

var (
	// s:3:"key";s:5:"value"; pairs from PHP-serialized arrays.
	phpPairRe = regexp.MustCompile(`s:\d+:"((?:[^"\\]|\\.)*)";s:\d+:"((?:[^"\\]|\\.)*)";`)

	utmFieldRes = func() map[string]*regexp.Regexp {
		res := make(map[string]*regexp.Regexp, len(utmKeys))
		for _, k := range utmKeys {
			res[k] = regexp.MustCompile(k + `\s*:\s*([^|"']+)`)
		}
		return res
	}()

	pysSourceRe  = regexp.MustCompile(`pys_source\s*[:"]+\s*([^|;"',}\s]+)`)
	pysLandingRe = regexp.MustCompile(`pys_landing\s*[:"]+\s*([^|;"',}\s]+)`)
)

// ParsePYS decodes a PYS enrichment payload into a flat UTM field set. It is
// tolerant of malformed input: it degrades from structured decoding to raw
// pattern extraction and always returns a (possibly empty) mapping, never an
// error. Callers treat missing keys as no signal for that dimension.
func ParsePYS(raw string) map[string]string {
	out := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}

	fields := decodeBlob(raw)
	if fields != nil {
		if pysUTM, ok := fields["pys_utm"]; ok {
			extractUTM(pysUTM, out)
		}
		for _, k := range []string{"pys_source", "pys_landing"} {
			if v := strings.TrimSpace(fields[k]); v != "" {
				out[k] = v
			}
		}
		return out
	}

	// No structured mapping obtainable: pattern-match the raw string itself.
	extractUTM(raw, out)
	if m := pysSourceRe.FindStringSubmatch(raw); m != nil {
		out["pys_source"] = strings.TrimSpace(m[1])
	}
	if m := pysLandingRe.FindStringSubmatch(raw); m != nil {
		out["pys_landing"] = strings.TrimSpace(m[1])
	}
	return out
}

// decodeBlob tries JSON first, then PHP-serialized key/value pairs. Returns
// nil when neither yields a mapping.
func decodeBlob(raw string) map[string]string {
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err == nil {
		fields := make(map[string]string, len(generic))
		for k, v := range generic {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		return fields
	}

	pairs := phpPairRe.FindAllStringSubmatch(raw, -1)
	if len(pairs) == 0 {
		return nil
	}
	fields := make(map[string]string, len(pairs))
	for _, p := range pairs {
		fields[p[1]] = p[2]
	}
	return fields
}

// extractUTM pulls the five utm_* values out of a |-delimited key:value
// string (or any raw text), trimming whitespace.
func extractUTM(s string, out map[string]string) {
	for _, k := range utmKeys {
		if m := utmFieldRes[k].FindStringSubmatch(s); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				out[k] = v
			}
		}
	}
}
