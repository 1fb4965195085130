package models

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// EncodeDataURL embeds data as a base64 data URL, the way the browser form
// embedded uploaded files. When mimeType is empty it is sniffed from data.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	// Parameters such as "; charset=utf-8" are dropped.
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// FileDataURL reads the file at path and returns it as a data URL. The mime
// type comes from the extension, falling back to content sniffing.
func FileDataURL(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is provided by the operator
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return EncodeDataURL(mime.TypeByExtension(filepath.Ext(path)), data), nil
}
