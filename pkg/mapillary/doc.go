// Package mapillary implements the Mapillary Graph API client used by the
// fetch engine: bounding box listings, per-image thumbnail resolution, and
// raw byte streaming. All calls are GET, paced by an optional rate
// limiter, and retried with exponential backoff on transient failures.
package mapillary
