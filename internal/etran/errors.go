package etran

import "strings"

// Upstream rate-limit and outage signals are recognized by prefix match
// on the decoded error text, mirroring the upstream gateway's own
// (undocumented) convention of prefixing its error messages.
const (
	outagePrefix    = "504"
	rateLimitPrefix = "400 Дождитесь окончания предыдущего запроса"
)

// IsOutage reports whether a decoded error text signals a full upstream
// outage (a 504 status code surfaced inside the SOAP error element).
func IsOutage(text string) bool {
	return strings.HasPrefix(text, outagePrefix)
}

// IsRateLimited reports whether a decoded error text is the upstream's
// signal that a previous request from the same session is still in flight.
func IsRateLimited(text string) bool {
	return strings.HasPrefix(text, rateLimitPrefix)
}
