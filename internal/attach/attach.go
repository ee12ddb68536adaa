// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach turns local files into what a user turn can carry: inline
// images as data URLs, and uploaded files as plain-text reference lines.
package attach

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/model"
)

// DefaultAttribution prefixes each uploaded file reference.
const DefaultAttribution = "Attached file"

// DefaultMaxImageBytes bounds inline images.
const DefaultMaxImageBytes = 20 * 1024 * 1024

// Error variables for attachment handling.
var (
	// ErrNotImage indicates a file passed as an image is not one.
	ErrNotImage = errors.New("not an image")

	// ErrImageTooLarge indicates an image exceeds the inline size limit.
	ErrImageTooLarge = errors.New("image too large")

	// ErrIsImage indicates an image was passed to the file upload path.
	// Images travel inline with the chat request instead.
	ErrIsImage = errors.New("images are sent inline, not uploaded")

	// ErrInvalidDataURL indicates a malformed base64 data URL.
	ErrInvalidDataURL = errors.New("invalid data URL")
)

// =============================================================================
// IMAGES
// =============================================================================

// MediaType guesses a file's media type from its extension, falling back to
// content sniffing of head.
func MediaType(path string, head []byte) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	if len(head) > 0 {
		mt := http.DetectContentType(head)
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return "application/octet-stream"
}

// IsImagePath reports whether the path names an image by extension.
func IsImagePath(path string) bool {
	return strings.HasPrefix(MediaType(path, nil), "image/")
}

// LoadImage reads an image file into an inline image segment. maxBytes <= 0
// selects DefaultMaxImageBytes.
func LoadImage(path string, maxBytes int64) (model.ImageSegment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return model.ImageSegment{}, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > maxBytes {
		return model.ImageSegment{}, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrImageTooLarge, filepath.Base(path), info.Size(), maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.ImageSegment{}, fmt.Errorf("read image: %w", err)
	}

	// Sniffed content wins over the extension for images.
	mt := http.DetectContentType(data)
	if !strings.HasPrefix(mt, "image/") {
		mt = MediaType(path, nil)
	}
	if !strings.HasPrefix(mt, "image/") {
		return model.ImageSegment{}, fmt.Errorf("%w: %s (%s)", ErrNotImage, filepath.Base(path), mt)
	}

	return model.ImageSegment{Data: EncodeDataURL(mt, data)}, nil
}

// EncodeDataURL builds "data:<mediaType>;base64,<payload>".
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into its media type and base64
// payload. The payload is validated but returned still encoded.
func ParseDataURL(s string) (mediaType, payload string, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURL)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: missing payload", ErrInvalidDataURL)
	}
	mediaType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", "", fmt.Errorf("%w: not base64 encoded", ErrInvalidDataURL)
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mediaType, payload, nil
}

// =============================================================================
// FILE REFERENCES
// =============================================================================

// Uploader stores a file on the backend.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (api.UploadResult, error)
}

// UploadFile uploads a non-image file and returns the backend's result.
func UploadFile(ctx context.Context, up Uploader, path string) (api.UploadResult, error) {
	if IsImagePath(path) {
		return api.UploadResult{}, fmt.Errorf("%w: %s", ErrIsImage, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	res, err := up.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return res, nil
}

// ReferenceLine formats one uploaded file reference.
func ReferenceLine(attribution, path string) string {
	if attribution == "" {
		attribution = DefaultAttribution
	}
	return attribution + ": " + path
}

// ComposeText prepends one reference line per uploaded path to the user's
// text, separated from it by a blank line. With no paths the text is
// returned unchanged; with no text only the reference lines remain.
func ComposeText(attribution string, paths []string, text string) string {
	if len(paths) == 0 {
		return text
	}

	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = ReferenceLine(attribution, p)
	}
	refs := strings.Join(lines, "\n")

	if strings.TrimSpace(text) == "" {
		return refs
	}
	return refs + "\n\n" + text
}
