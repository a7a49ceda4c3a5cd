// Package filetype detects the MIME type and media class of uploaded files.
//
// Detection is deterministic: the extension table below decides first, and a
// content sniff of the byte prefix is consulted only when the extension is
// unknown. Ties are broken by extension. The table is part of the public
// contract — asset paths derive from it.
package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lodehq/lode/pkg/asset"
)

// Info is the detection result for one file.
type Info struct {
	// MIMEType is the detected content type, e.g. "video/mp4".
	MIMEType string

	// MediaClass is the coarse category used for asset-path derivation and
	// vector-mirror collection routing.
	MediaClass asset.MediaClass

	// BasePath is the first asset-path segment, equal to the media class.
	BasePath string
}

// entry couples a MIME type with its media class for the extension table.
type entry struct {
	mime  string
	class asset.MediaClass
}

// byExtension is the authoritative extension table. Extensions are
// lower-case without the leading dot.
var byExtension = map[string]entry{
	// video
	"mp4":  {"video/mp4", asset.MediaVideo},
	"mov":  {"video/quicktime", asset.MediaVideo},
	"avi":  {"video/x-msvideo", asset.MediaVideo},
	"mkv":  {"video/x-matroska", asset.MediaVideo},
	"webm": {"video/webm", asset.MediaVideo},
	"flv":  {"video/x-flv", asset.MediaVideo},
	"wmv":  {"video/x-ms-wmv", asset.MediaVideo},
	"m4v":  {"video/x-m4v", asset.MediaVideo},
	"mpeg": {"video/mpeg", asset.MediaVideo},
	"mpg":  {"video/mpeg", asset.MediaVideo},

	// audio
	"mp3":  {"audio/mpeg", asset.MediaAudio},
	"wav":  {"audio/wav", asset.MediaAudio},
	"flac": {"audio/flac", asset.MediaAudio},
	"aac":  {"audio/aac", asset.MediaAudio},
	"ogg":  {"audio/ogg", asset.MediaAudio},
	"m4a":  {"audio/mp4", asset.MediaAudio},
	"wma":  {"audio/x-ms-wma", asset.MediaAudio},
	"opus": {"audio/opus", asset.MediaAudio},

	// image
	"jpg":  {"image/jpeg", asset.MediaImage},
	"jpeg": {"image/jpeg", asset.MediaImage},
	"png":  {"image/png", asset.MediaImage},
	"gif":  {"image/gif", asset.MediaImage},
	"bmp":  {"image/bmp", asset.MediaImage},
	"webp": {"image/webp", asset.MediaImage},
	"tif":  {"image/tiff", asset.MediaImage},
	"tiff": {"image/tiff", asset.MediaImage},
	"svg":  {"image/svg+xml", asset.MediaImage},
	"heic": {"image/heic", asset.MediaImage},

	// document
	"pdf":  {"application/pdf", asset.MediaDocument},
	"doc":  {"application/msword", asset.MediaDocument},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", asset.MediaDocument},
	"xls":  {"application/vnd.ms-excel", asset.MediaDocument},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", asset.MediaDocument},
	"ppt":  {"application/vnd.ms-powerpoint", asset.MediaDocument},
	"pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", asset.MediaDocument},
	"txt":  {"text/plain", asset.MediaDocument},
	"md":   {"text/markdown", asset.MediaDocument},
	"csv":  {"text/csv", asset.MediaDocument},
	"json": {"application/json", asset.MediaDocument},
	"xml":  {"application/xml", asset.MediaDocument},
	"html": {"text/html", asset.MediaDocument},
	"rtf":  {"application/rtf", asset.MediaDocument},
	"odt":  {"application/vnd.oasis.opendocument.text", asset.MediaDocument},
}

// Detect resolves the MIME type and media class for a filename and optional
// byte prefix. data may be nil; detection then relies on the extension
// alone.
func Detect(filename string, data []byte) Info {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if e, ok := byExtension[ext]; ok {
		return info(e)
	}

	if len(data) > 0 {
		m := mimetype.Detect(data)
		return info(entry{mime: m.String(), class: classOfMIME(m.String())})
	}

	return info(entry{mime: "application/octet-stream", class: asset.MediaOther})
}

func info(e entry) Info {
	return Info{
		MIMEType:   e.mime,
		MediaClass: e.class,
		BasePath:   string(e.class),
	}
}

// documentMIMEs are sniffed MIME types classified as documents even though
// their top-level type is not "text".
var documentMIMEs = map[string]bool{
	"application/pdf":  true,
	"application/json": true,
	"application/xml":  true,
	"application/rtf":  true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
}

func classOfMIME(mime string) asset.MediaClass {
	// mimetype may append parameters such as "; charset=utf-8".
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	switch {
	case strings.HasPrefix(mime, "video/"):
		return asset.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return asset.MediaAudio
	case strings.HasPrefix(mime, "image/"):
		return asset.MediaImage
	case strings.HasPrefix(mime, "text/"):
		return asset.MediaDocument
	case documentMIMEs[mime]:
		return asset.MediaDocument
	default:
		return asset.MediaOther
	}
}
