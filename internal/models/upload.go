package models

// Media kinds accepted by POST /upload.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Upload is the body returned by POST /upload. URL is relative to the API host
// on the wire; the client resolves it before handing it out.
type Upload struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
}
