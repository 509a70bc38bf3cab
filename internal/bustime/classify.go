package bustime

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	transit "github.com/transitwatch/busbridge/internal"
)

// softPattern maps an upstream error message fragment to the reason string
// surfaced on soft-empty results.
type softPattern struct {
	fragment string // matched case-insensitively as a substring
	reason   string
}

// softPatterns are upstream "errors" that are really valid empty results.
// Treating these as failures would surface normal "no trains right now"
// conditions as 5xx to every caller.
var softPatterns = []softPattern{
	{"no data found", "no data found for the requested parameters"},
	{"no service scheduled", "no service is scheduled"},
	{"no arrival times", "no arrival times are available"},
	{"no predictions", "no predictions are available right now"},
	{"no active vehicles", "no active vehicles for the requested route"},
	{"no arrivals", "no arrivals are available"},
}

// classification is the outcome of inspecting a parsed upstream body.
// Exactly one of payload and err is set; reason is set for soft empties.
type classification struct {
	payload    []byte
	reason     string
	sourceTime *time.Time
}

// classify inspects the upstream body and decides between a genuine payload,
// a soft empty (success with a reason), and a genuine failure.
func classify(body []byte, responseKey string) (classification, *transit.Error) {
	root := gjson.GetBytes(body, responseKey)
	if !root.Exists() || !root.IsObject() {
		return classification{}, &transit.Error{
			Code:       transit.CodeUnexpectedShape,
			Message:    "upstream body is missing the " + responseKey + " object",
			HTTPStatus: 502,
		}
	}

	upstream := upstreamErrors(root)
	if len(upstream) == 0 {
		return classification{
			payload:    []byte(root.Raw),
			sourceTime: sourceTime(root),
		}, nil
	}

	// The body is a valid empty result only when every listed error matches
	// the soft table; a single unmatched entry is a genuine failure and must
	// not hide behind a preceding "no data" message.
	reason := ""
	var hard *transit.UpstreamError
	for i := range upstream {
		r, ok := matchSoft(upstream[i].Msg)
		if !ok {
			hard = &upstream[i]
			break
		}
		if reason == "" {
			reason = r
		}
	}

	if hard == nil {
		// Strip the error list and surface the reason of the first entry.
		stripped, err := sjson.Delete(root.Raw, "error")
		if err != nil {
			stripped = root.Raw
		}
		return classification{
			payload:    []byte(stripped),
			reason:     reason,
			sourceTime: sourceTime(root),
		}, nil
	}

	code := hard.Code
	if code == "" {
		code = deriveCode(hard.Msg)
	}
	return classification{}, &transit.Error{
		Code:        code,
		Message:     hard.Msg,
		HTTPStatus:  hardStatus(hard.Msg),
		Reason:      "upstream_error",
		RawUpstream: upstream,
	}
}

// upstreamErrors collects the error array, if any, preserving order.
func upstreamErrors(root gjson.Result) []transit.UpstreamError {
	errs := root.Get("error")
	if !errs.IsArray() {
		return nil
	}
	var out []transit.UpstreamError
	errs.ForEach(func(_, e gjson.Result) bool {
		out = append(out, transit.UpstreamError{
			Code: e.Get("code").String(),
			Msg:  e.Get("msg").String(),
		})
		return true
	})
	return out
}

// matchSoft reports whether msg matches a known soft-empty pattern.
func matchSoft(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, p := range softPatterns {
		if strings.Contains(lower, p.fragment) {
			return p.reason, true
		}
	}
	return "", false
}

// hardStatus maps an unrecognized upstream error message to the most
// specific caller-facing status the classifier can infer.
func hardStatus(msg string) int {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api key") || strings.Contains(lower, "apikey") ||
		strings.Contains(lower, "access denied") || strings.Contains(lower, "unauthorized"):
		return 401
	case strings.Contains(lower, "transaction limit") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many"):
		return 429
	case strings.Contains(lower, "parameter"):
		return 400
	default:
		return 502
	}
}

// deriveCode produces a stable machine-readable code from an upstream error
// message when the upstream reports none: uppercased, runs of
// non-alphanumerics collapsed to single underscores.
func deriveCode(msg string) string {
	var b strings.Builder
	lastUnderscore := true // suppress a leading underscore
	for _, r := range strings.ToUpper(msg) {
		alnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	code := strings.TrimRight(b.String(), "_")
	if code == "" {
		return transit.CodeUpstreamFailed
	}
	return code
}

// busTimeLayouts are the timestamp layouts used by BusTime-style feeds.
// Predictions omit seconds; most other fields carry them.
var busTimeLayouts = []string{"20060102 15:04:05", "20060102 15:04"}

// sourceTime extracts the upstream-reported generation time, when parseable.
func sourceTime(root gjson.Result) *time.Time {
	for _, path := range []string{"tm", "vehicle.0.tmstmp", "prd.0.tmstmp"} {
		raw := root.Get(path).String()
		if raw == "" {
			continue
		}
		for _, layout := range busTimeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return &t
			}
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t
		}
	}
	return nil
}
