package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// uploadTypes maps sniffed types to the content type the backend accepts.
// The backend knows some video types only by their short names.
var uploadTypes = []struct {
	detect string
	wire   string
	kind   string
}{
	{"image/jpeg", "image/jpeg", models.MediaImage},
	{"image/png", "image/png", models.MediaImage},
	{"image/gif", "image/gif", models.MediaImage},
	{"image/webp", "image/webp", models.MediaImage},
	{"video/mp4", "video/mp4", models.MediaVideo},
	{"video/x-msvideo", "video/avi", models.MediaVideo},
	{"video/quicktime", "video/mov", models.MediaVideo},
	{"video/x-ms-asf", "video/wmv", models.MediaVideo},
	{"video/x-flv", "video/flv", models.MediaVideo},
	{"video/webm", "video/webm", models.MediaVideo},
}

// MediaType sniffs data and returns the content type to upload it with and
// its media kind. ok is false for anything but the accepted images and videos.
func MediaType(data []byte) (contentType, kind string, ok bool) {
	m := mimetype.Detect(data)
	for _, t := range uploadTypes {
		if m.Is(t.detect) {
			return t.wire, t.kind, true
		}
	}
	return m.String(), "", false
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends a media file as multipart field "file". Oversized files and
// files that are not an accepted image or video are refused before any
// request is made. The returned URL is absolute.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (models.Upload, error) {
	const op = "uploads.upload"
	data, err := io.ReadAll(io.LimitReader(r, c.maxUploadBytes+1))
	if err != nil {
		return models.Upload{}, fmt.Errorf("%s: read %s: %w", op, filename, err)
	}
	if int64(len(data)) > c.maxUploadBytes {
		return models.Upload{}, apierr.New(op, apierr.KindPayloadTooLarge,
			fmt.Sprintf("%s is larger than %d bytes", filename, c.maxUploadBytes))
	}
	contentType, _, ok := MediaType(data)
	if !ok {
		return models.Upload{}, apierr.New(op, apierr.KindUnsupportedMediaType,
			fmt.Sprintf("%s: unsupported file type %s", filename, contentType))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return models.Upload{}, err
	}
	if _, err := part.Write(data); err != nil {
		return models.Upload{}, err
	}
	if err := mw.Close(); err != nil {
		return models.Upload{}, err
	}

	var up models.Upload
	err = c.do(ctx, call{
		op:          op,
		method:      http.MethodPost,
		path:        "/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		auth:        true,
		hint:        apierr.KindUnsupportedMediaType,
	}, &up)
	if err != nil {
		return models.Upload{}, err
	}
	up.URL = c.Resolve(up.URL)
	return up, nil
}
