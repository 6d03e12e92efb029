package domain

import "net/http"

// sniffableImageTypes are the image formats net/http.DetectContentType
// recognises by magic bytes. WebP is checked separately because the WHATWG
// sniff spec has no WebP signature.
var sniffableImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
}

// SniffLen is how many leading bytes SniffImageMIME looks at.
const SniffLen = 512

// isWebP reports whether data is a RIFF container with "WEBP" at offset 8.
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// SniffImageMIME returns the media type of data when its header is a
// recognised image format, or ("", false) otherwise.
func SniffImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if sniffableImageTypes[mime] {
		return mime, true
	}
	return "", false
}
