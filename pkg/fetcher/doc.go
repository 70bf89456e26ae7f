// Package fetcher orchestrates the resumable bulk fetch: it reads the
// work queue and asset catalog, lists candidates per bounding box task,
// resolves and downloads each uncatalogued candidate, and persists both
// ledgers so repeated runs resume instead of re-downloading.
//
// A listing failure leaves its task pending for the next run; every other
// per-candidate failure is isolated to that one candidate.
package fetcher
