package transit

// Stable machine-readable error codes for the transit domain.
const (
	CodeMissingAPIKey   = "MISSING_API_KEY"         // local misconfiguration, HTTP 500
	CodeMissingParam    = "MISSING_PARAM"           // caller input error, HTTP 400
	CodeUpstreamFailed  = "UPSTREAM_REQUEST_FAILED" // retries exhausted or hard HTTP failure, HTTP 502
	CodeUnexpectedShape = "UNEXPECTED_SHAPE"        // upstream body missing the response object, HTTP 502
	CodeAuthRejected    = "UPSTREAM_AUTH_REJECTED"  // upstream rejected the credential, HTTP 401
	CodeRateLimited     = "UPSTREAM_RATE_LIMITED"   // upstream transaction limit, HTTP 429
	CodeInternal        = "INTERNAL"                // catch-all for non-domain errors
)
