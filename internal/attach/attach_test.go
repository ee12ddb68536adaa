// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pondsiders/Rosemary-App/internal/api"
)

// 1x1 transparent PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type fakeUploader struct {
	name string
	data string
}

func (f *fakeUploader) Upload(_ context.Context, filename string, r io.Reader) (api.UploadResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return api.UploadResult{}, err
	}
	f.name, f.data = filename, string(b)
	return api.UploadResult{Path: "/uploads/1_" + filename, Filename: filename, Size: int64(len(b))}, nil
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadImage(t *testing.T) {
	// Extension is wrong on purpose; sniffing wins.
	path := writeFile(t, "pic.bin", tinyPNG)

	seg, err := LoadImage(path, 0)
	require.NoError(t, err)

	mt, payload, err := ParseDataURL(seg.Data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mt)
	assert.NotEmpty(t, payload)
}

func TestLoadImage_Rejects(t *testing.T) {
	text := writeFile(t, "notes.txt", []byte("plain text"))
	_, err := LoadImage(text, 0)
	assert.ErrorIs(t, err, ErrNotImage)

	big := writeFile(t, "big.png", tinyPNG)
	_, err = LoadImage(big, 10)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"), 0)
	assert.Error(t, err)
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		mt      string
		payload string
		wantErr bool
	}{
		{"png", "data:image/png;base64,AAAA", "image/png", "AAAA", false},
		{"default type", "data:;base64,AAAA", "text/plain", "AAAA", false},
		{"no scheme", "image/png;base64,AAAA", "", "", true},
		{"no comma", "data:image/png;base64", "", "", true},
		{"not base64", "data:image/png,raw", "", "", true},
		{"bad payload", "data:image/png;base64,!!!", "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mt, payload, err := ParseDataURL(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDataURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.mt, mt)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestComposeText(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		text  string
		want  string
	}{
		{"no files", nil, "hello", "hello"},
		{"one file", []string{"/u/a.txt"}, "read this", "Attached file: /u/a.txt\n\nread this"},
		{"two files", []string{"/u/a.txt", "/u/b.pdf"}, "both", "Attached file: /u/a.txt\nAttached file: /u/b.pdf\n\nboth"},
		{"files only", []string{"/u/a.txt"}, "  ", "Attached file: /u/a.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComposeText("", tc.paths, tc.text))
		})
	}

	assert.Equal(t, "File: /x\n\ny", ComposeText("File", []string{"/x"}, "y"))
}

func TestUploadFile(t *testing.T) {
	up := &fakeUploader{}
	path := writeFile(t, "report.csv", []byte("a,b\n1,2\n"))

	res, err := UploadFile(context.Background(), up, path)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/1_report.csv", res.Path)
	assert.Equal(t, "report.csv", up.name)
	assert.Equal(t, "a,b\n1,2\n", up.data)
}

func TestUploadFile_RejectsImages(t *testing.T) {
	up := &fakeUploader{}
	path := writeFile(t, "photo.png", tinyPNG)

	_, err := UploadFile(context.Background(), up, path)
	assert.ErrorIs(t, err, ErrIsImage)
	assert.Empty(t, up.name, "nothing was sent")
}
