package httpserver

import "strings"

// mimeTypes is the fixed extension table; lookups are by lowercased
// extension without the dot. The platform mime package is deliberately not
// used so results do not depend on host configuration.
var mimeTypes = map[string]string{
	// Images
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"heic": "image/heic",
	"heif": "image/heif",
	// Web
	"html": "text/html; charset=utf-8",
	"htm":  "text/html; charset=utf-8",
	"css":  "text/css; charset=utf-8",
	"js":   "application/javascript; charset=utf-8",
	"json": "application/json; charset=utf-8",
	"xml":  "application/xml; charset=utf-8",
	"txt":  "text/plain; charset=utf-8",
	"csv":  "text/csv; charset=utf-8",
	// Video
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
	// Audio
	"mp3": "audio/mpeg",
	"wav": "audio/wav",
	"ogg": "audio/ogg",
	"m4a": "audio/mp4",
	// Documents and fonts
	"pdf":   "application/pdf",
	"zip":   "application/zip",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"eot":   "application/vnd.ms-fontobject",
}

// MimeType returns the content type for a path or filename,
// application/octet-stream when the extension is unknown or missing.
func MimeType(name string) string {
	if mt, ok := mimeTypes[extOf(name)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// extOf returns the lowercase extension without the dot, "" when absent.
func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
