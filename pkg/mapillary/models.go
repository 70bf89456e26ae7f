package mapillary

import "time"

// ImagesResponse is the Graph API envelope for a bounding box listing
type ImagesResponse struct {
	Data []Candidate `json:"data"`
}

// Candidate is a remote-listed image that has not yet been evaluated
// for coordinates, thumbnail, or download.
type Candidate struct {
	ID               string    `json:"id"`
	ComputedGeometry *Geometry `json:"computed_geometry,omitempty"`
	Geometry         *Geometry `json:"geometry,omitempty"`
	CapturedAt       int64     `json:"captured_at,omitempty"`
}

// Geometry is a GeoJSON point as returned by the Graph API
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Coordinates resolves the candidate's longitude and latitude, preferring
// the computed geometry and falling back to the raw geometry. ok is false
// when neither field yields at least two coordinate components.
func (c *Candidate) Coordinates() (lon, lat float64, ok bool) {
	for _, g := range []*Geometry{c.ComputedGeometry, c.Geometry} {
		if g != nil && len(g.Coordinates) >= 2 {
			return g.Coordinates[0], g.Coordinates[1], true
		}
	}
	return 0, 0, false
}

// CapturedAtUTC converts the capture timestamp (milliseconds since epoch)
// to an RFC 3339 UTC string. It returns the empty string when the source
// timestamp is absent.
func (c *Candidate) CapturedAtUTC() string {
	if c.CapturedAt <= 0 {
		return ""
	}
	return time.UnixMilli(c.CapturedAt).UTC().Format(time.RFC3339)
}

// thumbnailResponse holds the per-image field fetch for thumbnail URLs
type thumbnailResponse struct {
	ID           string `json:"id"`
	Thumb2048URL string `json:"thumb_2048_url,omitempty"`
	Thumb1024URL string `json:"thumb_1024_url,omitempty"`
}

// BoundingBox is a geographic rectangle in lon/lat order
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}
