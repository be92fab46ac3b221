package model

// TagsResponse is the extracted-tag payload of the tag-reading endpoint.
// Artwork, when present, is a base64 data URI, the same encoding accepted
// as artwork input on job creation.
type TagsResponse struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Grouping string `json:"grouping,omitempty"`
	Artwork  string `json:"artwork,omitempty"`
}

// GroupingResponse suggests a grouping tag from a video's uploader.
type GroupingResponse struct {
	Grouping string `json:"grouping"`
}

// ArtworkResponse is the resolved artwork location for client preview.
type ArtworkResponse struct {
	ArtworkURL string `json:"artworkUrl"`
}
