package services

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
)

func multipartFile(t *testing.T, field, filename, content string) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	return req.MultipartForm.File[field][0]
}

func TestStorageService_SaveAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	storage := NewStorageService(dir)
	require.NoError(t, storage.EnsureUploadDir())

	header := multipartFile(t, "cv", "Resume.PDF", "%PDF-1.4 fake")

	name, path, err := storage.SaveFile(header, "cv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "cv_"))
	assert.True(t, strings.HasSuffix(name, ".pdf"))
	assert.Equal(t, filepath.Join(dir, name), path)
	assert.Equal(t, path, storage.GetFilePath(name))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	require.NoError(t, storage.DeleteFile(name))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, storage.DeleteFile(name), "deleting twice is not an error")
}

func TestStorageService_RejectsUnsupportedExtension(t *testing.T) {
	storage := NewStorageService(t.TempDir())

	_, _, err := storage.SaveFile(multipartFile(t, "cv", "cv.exe", "MZ"), "cv")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, apperrors.GetCode(err))
}
