package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrInvalidDataURL is returned when an attachment payload cannot be decoded.
var ErrInvalidDataURL = errors.New("invalid data url")

// DecodeDataURL decodes "data:<mime>;base64,<payload>" or a bare base64 payload.
// The returned MIME type is empty when the payload carried none.
func DecodeDataURL(raw string) ([]byte, string, error) {
	payload := strings.TrimSpace(raw)
	mime := ""

	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("%w: missing ','", ErrInvalidDataURL)
		}
		params := strings.Split(header, ";")
		if len(params) < 2 || params[len(params)-1] != "base64" {
			return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
		}
		mime = params[0]
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	return data, mime, nil
}

// Extension picks the stored extension for an attachment: the original name's
// extension if it has one, otherwise whatever the content sniffs as.
func Extension(originalName string, data []byte) string {
	if ext := strings.TrimPrefix(filepath.Ext(filepath.Base(originalName)), "."); validExtension(ext) {
		return ext
	}
	if ext := strings.TrimPrefix(mimetype.Detect(data).Extension(), "."); ext != "" {
		return ext
	}
	return "bin"
}

func validExtension(ext string) bool {
	if ext == "" || len(ext) > 16 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
