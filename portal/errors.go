package portal

import "errors"

// ErrAuth is returned when the portal rejects the configured credentials.
// It is fatal for the process: retrying bad credentials risks a lockout.
var ErrAuth = errors.New("portal: login rejected")

// ErrTimeout is returned when a bounded wait expires, either a single
// element wait or the overall post-login budget. Retryable.
var ErrTimeout = errors.New("portal: wait timed out")

// ErrNavigation is returned when the expected page structure is missing
// while driving the session to the grades page. Retryable.
var ErrNavigation = errors.New("portal: navigation failed")

// ErrExtraction is returned when the grades content region cannot be read.
// Retryable.
var ErrExtraction = errors.New("portal: extraction failed")
