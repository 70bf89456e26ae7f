// Package catalog maintains the deduplicating ledger of fetched image
// records. The in-memory id set is seeded from the persisted CSV at load
// and updated on every append, so a candidate id is fetched at most once
// across and within runs.
package catalog
