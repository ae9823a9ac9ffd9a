package media

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func uploadHeader(t *testing.T, filename, content string) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("cover", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if err := request.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	files := request.MultipartForm.File["cover"]
	if len(files) != 1 {
		t.Fatalf("expected one uploaded file, got %d", len(files))
	}
	return files[0]
}

func TestSaveWritesFileUnderSection(t *testing.T) {
	store := newTestStore(t)

	relative, err := store.Save(SectionVoting, uploadHeader(t, "cover.jpg", "image-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(relative, SectionVoting+"/") {
		t.Fatalf("expected path under voting section, got %q", relative)
	}
	if !strings.HasSuffix(relative, "_cover.jpg") {
		t.Fatalf("expected original filename suffix, got %q", relative)
	}

	stored, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(relative)))
	if err != nil {
		t.Fatalf("failed to read stored file: %v", err)
	}
	if string(stored) != "image-bytes" {
		t.Fatalf("unexpected stored content %q", stored)
	}
}

func TestSaveGeneratesDistinctNamesForSameFilename(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Save(SectionGiveaways, uploadHeader(t, "cover.jpg", "a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.Save(SectionGiveaways, uploadHeader(t, "cover.jpg", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct paths, got %q twice", first)
	}
}

func TestRemoveDeletesStoredAssetAndIgnoresMissing(t *testing.T) {
	store := newTestStore(t)

	relative, err := store.Save(SectionVoting, uploadHeader(t, "cover.jpg", "x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.Remove(relative, "", "voting/never_existed.jpg")

	if _, err := os.Stat(filepath.Join(store.Root(), filepath.FromSlash(relative))); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err: %v", err)
	}
}

func TestNewStoreRequiresRoot(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
