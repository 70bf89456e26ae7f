// Package queue persists the ordered bounding box work queue. Loading is
// defensive: malformed rows are reported and carried through untouched
// rather than aborting the run. Saving always rewrites the full snapshot
// atomically so completion flags survive crashes.
package queue
