package cache

import (
	"bytes"
	"encoding/base64"
)

var (
	pngMagic  = []byte("\x89PNG")
	jpegMagic = []byte("\xff\xd8")
)

// IconMIMEType sniffs the image type of stored icon bytes, defaulting to PNG
func IconMIMEType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return "image/png"
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg"
	case isSVG(data):
		return "image/svg+xml"
	default:
		return "image/png"
	}
}

func isSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimSpace(head)
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

// DataURL encodes icon bytes as a data: URL
func DataURL(data []byte) string {
	return "data:" + IconMIMEType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
