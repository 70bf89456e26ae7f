package fetcher

import (
	"io"

	"mapfetch/pkg/mapillary"
)

// ImageAPI is the transport surface the orchestrator depends on. The
// production implementation is mapillary.Client; tests substitute fakes.
type ImageAPI interface {
	ListImages(bbox mapillary.BoundingBox, fields string, limit int) ([]mapillary.Candidate, error)
	ResolveThumbnailURL(imageID string) (string, error)
	FetchBytes(url string) (io.ReadCloser, error)
}
