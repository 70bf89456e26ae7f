// Package ratelimit provides a token bucket limiter used to pace calls
// against the Mapillary Graph API.
package ratelimit
