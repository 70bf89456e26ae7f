// Package storage persists binary image assets under deterministic
// id-derived paths using an atomic write-then-rename publish.
package storage
