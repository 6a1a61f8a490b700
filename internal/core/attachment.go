package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SourceType identifies where an attachment's contents came from.
type SourceType string

const (
	SourceData   SourceType = "data"
	SourceFile   SourceType = "file"
	SourceString SourceType = "string"
	SourceURL    SourceType = "url"
)

// lineLength is the base64 line width used in MIME bodies.
const lineLength = 76

// MaxURLAttachmentSize caps the body NewURLAttachment reads. 25 MiB is the
// largest message any built-in service accepts.
var MaxURLAttachmentSize int64 = 25 << 20

// Attachment is an immutable file attachment.
type Attachment struct {
	name     string
	contents []byte
	mime     string
	encoding string
	source   SourceType
}

// NewAttachment creates an attachment from raw contents. Only the base name of
// name is kept. An empty mime is detected from the name.
func NewAttachment(source SourceType, name string, contents []byte, mime string) *Attachment {
	a := &Attachment{
		name:     baseName(name),
		contents: append([]byte(nil), contents...),
		mime:     mime,
		encoding: "base64",
		source:   source,
	}
	if a.mime == "" {
		a.mime = DetectContentType(a.name, a.contents)
	}
	return a
}

// NewDataAttachment creates an attachment from a byte slice.
func NewDataAttachment(name string, data []byte, mime string) *Attachment {
	return NewAttachment(SourceData, name, data, mime)
}

// NewStringAttachment creates an attachment from a string.
func NewStringAttachment(name, contents, mime string) *Attachment {
	return NewAttachment(SourceString, name, []byte(contents), mime)
}

// NewFileAttachment reads path and creates an attachment named after it.
// If name is empty the file's base name is used.
func NewFileAttachment(path, name string) (*Attachment, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	if name == "" {
		name = path
	}
	return NewAttachment(SourceFile, name, contents, ""), nil
}

// NewURLAttachment downloads rawURL and creates an attachment from the body.
// If name is empty the last path segment of the URL is used.
func NewURLAttachment(ctx context.Context, client *http.Client, rawURL, name string) (*Attachment, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build attachment request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("failed to fetch attachment %s: status %d", rawURL, resp.StatusCode)
	}

	contents, err := io.ReadAll(io.LimitReader(resp.Body, MaxURLAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %s: %w", rawURL, err)
	}
	if int64(len(contents)) > MaxURLAttachmentSize {
		return nil, fmt.Errorf("failed to read attachment %s: larger than %d bytes", rawURL, MaxURLAttachmentSize)
	}

	if name == "" {
		name = path.Base(req.URL.Path)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return NewAttachment(SourceURL, name, contents, mime), nil
}

// Name returns the attachment's file name without any directory.
func (a *Attachment) Name() string { return a.name }

// Contents returns a copy of the raw contents.
func (a *Attachment) Contents() []byte { return append([]byte(nil), a.contents...) }

// Size returns the number of content bytes.
func (a *Attachment) Size() int { return len(a.contents) }

// MIME returns the content type.
func (a *Attachment) MIME() string { return a.mime }

// Encoding returns the transfer encoding used for Data.
func (a *Attachment) Encoding() string { return a.encoding }

// Type returns the source type.
func (a *Attachment) Type() SourceType { return a.source }

// Data returns the base64 encoded contents, split into CRLF terminated lines.
func (a *Attachment) Data() string {
	return WrapBase64(a.contents)
}

// WrapBase64 encodes b as base64 split into 76 column CRLF terminated lines.
func WrapBase64(b []byte) string {
	encoded := base64.StdEncoding.EncodeToString(b)

	var sb strings.Builder
	sb.Grow(len(encoded) + len(encoded)/lineLength*2 + 2)
	for len(encoded) > lineLength {
		sb.WriteString(encoded[:lineLength])
		sb.WriteString("\r\n")
		encoded = encoded[lineLength:]
	}
	sb.WriteString(encoded)
	sb.WriteString("\r\n")
	return sb.String()
}

// baseName strips directories using both separators so Windows style paths
// are handled on every platform.
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// DetectContentType attempts to detect the content type from the filename,
// falling back to sniffing the contents.
func DetectContentType(filename string, contents []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".zip":
		return "application/zip"
	}

	if len(contents) > 0 {
		return http.DetectContentType(contents)
	}
	return "application/octet-stream"
}
