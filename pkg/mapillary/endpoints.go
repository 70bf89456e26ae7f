package mapillary

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultBaseURL is the base URL for the Mapillary Graph API
	DefaultBaseURL = "https://graph.mapillary.com"

	// ImagesEndpoint is the endpoint for bounding box image listings
	ImagesEndpoint = "/images"

	// ListingFields is the field selector used for bounding box listings
	ListingFields = "id,computed_geometry,geometry,captured_at"

	// ThumbnailFields is the field selector used to resolve thumbnail URLs
	ThumbnailFields = "thumb_2048_url,thumb_1024_url"

	// DefaultListLimit is the default number of images requested per listing
	DefaultListLimit = 100

	// MaxListLimit is the maximum the Graph API accepts for a single listing
	MaxListLimit = 2000
)

// String renders the box in the bbox query order the Graph API expects:
// min_lon,min_lat,max_lon,max_lat.
func (b BoundingBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// ListImagesURL constructs the URL for listing images within a bounding box
func ListImagesURL(baseURL, token string, bbox BoundingBox, fields string, limit int) string {
	if fields == "" {
		fields = ListingFields
	}
	if limit <= 0 {
		limit = DefaultListLimit
	} else if limit > MaxListLimit {
		limit = MaxListLimit
	}

	params := url.Values{}
	params.Set("access_token", token)
	params.Set("bbox", bbox.String())
	params.Set("fields", fields)
	params.Set("limit", strconv.Itoa(limit))

	return fmt.Sprintf("%s%s?%s", baseURL, ImagesEndpoint, params.Encode())
}

// ImageFieldsURL constructs the URL for fetching selected fields of a
// single image by id
func ImageFieldsURL(baseURL, token, imageID, fields string) string {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("fields", fields)

	return fmt.Sprintf("%s/%s?%s", baseURL, url.PathEscape(imageID), params.Encode())
}
