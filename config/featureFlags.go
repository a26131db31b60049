package config

import (
	"os"
	"strings"
)

const defaultBillNumberPrefix = "ST"

// BillNumberPrefix is the fixed tag in front of auto-allocated bill numbers.
//
// Set via env:
// - BILL_NUMBER_PREFIX=ST
func BillNumberPrefix() string {
	v := strings.TrimSpace(os.Getenv("BILL_NUMBER_PREFIX"))
	if v == "" {
		return defaultBillNumberPrefix
	}
	return v
}

// UnknownSellerStateIsIntra flips the tax fallback used when the seller profile has
// no registered state. Default is inter-state (IGST).
//
// Set via env:
// - UNKNOWN_SELLER_STATE=intra
func UnknownSellerStateIsIntra() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("UNKNOWN_SELLER_STATE")))
	return v == "intra" || v == "intra-state" || v == "intrastate"
}

// BillRoundOff enables the header-level round-off to the nearest whole unit.
//
// Set via env:
// - BILL_ROUND_OFF=true
func BillRoundOff() bool {
	return envBool("BILL_ROUND_OFF")
}

// RateLimit is a ulule/limiter formatted rate, e.g. "100-M". Empty disables limiting.
func RateLimit() string {
	return strings.TrimSpace(os.Getenv("RATE_LIMIT"))
}

// CorsAllowedOrigins is a comma separated list; empty means allow all.
func CorsAllowedOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PublishBillEvents turns on the transactional outbox rows for bill lifecycle transitions.
//
// Set via env:
// - PUBLISH_BILL_EVENTS=true
func PublishBillEvents() bool {
	return envBool("PUBLISH_BILL_EVENTS")
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
