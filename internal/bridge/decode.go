package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrBodyTooLarge is returned when a decoded body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("upstream body too large")

// Body is an upstream payload after content decoding.
type Body struct {
	Data        []byte
	ContentType string
	// Charset is the encoding the payload was transcoded from, if any.
	Charset string
}

// Decode undoes Content-Encoding and transcodes text payloads to UTF-8.
// limit caps the decoded size; zero means unlimited.
func Decode(raw []byte, contentEncoding, contentType string, limit int64) (*Body, error) {
	data, err := decompress(raw, contentEncoding, limit)
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	body := &Body{Data: data, ContentType: contentType}
	if !isText(contentType, data) {
		return body, nil
	}

	label := charsetLabel(contentType)
	if label == "" && !utf8.Valid(data) {
		label = detectCharset(data)
	}
	if label == "" {
		return body, nil
	}

	enc, name := charset.Lookup(label)
	if enc == nil || name == "utf-8" {
		return body, nil
	}
	converted, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("transcode %s: %w", name, err)
	}
	body.Data = converted
	body.Charset = name
	return body, nil
}

func decompress(raw []byte, encoding string, limit int64) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return capped(raw, limit)
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			r = fr
		}
	case "zstd":
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		r = dec
	default:
		return capped(raw, limit)
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	return capped(data, limit)
}

func capped(data []byte, limit int64) ([]byte, error) {
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

func isText(contentType string, data []byte) bool {
	media, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch {
		case strings.HasPrefix(media, "text/"),
			strings.HasSuffix(media, "json"),
			strings.HasSuffix(media, "xml"),
			strings.Contains(media, "javascript"):
			return true
		}
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func charsetLabel(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return ""
	}
	return strings.ToLower(result.Charset)
}
