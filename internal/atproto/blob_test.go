package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/bskyshare/bskyshare/internal/storage"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thumb.jpg")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestUploadBlobMissingFileSkipped(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())

	blob, err := client.UploadBlob(context.Background(), "")
	if err != nil || blob != nil {
		t.Errorf("empty path: got (%v, %v), want (nil, nil)", blob, err)
	}

	blob, err = client.UploadBlob(context.Background(), "/nonexistent/thumb.jpg")
	if err != nil || blob != nil {
		t.Errorf("missing file: got (%v, %v), want (nil, nil)", blob, err)
	}

	if pds.count(methodUploadBlob) != 0 {
		t.Errorf("uploadBlob called for a skipped file")
	}
}

func TestUploadBlobSizeCeiling(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingAccessToken, testAccessJwt)

	pds.handle(methodUploadBlob, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"bafkrei"},"mimeType":"image/jpeg","size":1000000}}`)
	})

	// One byte over the ceiling: skipped without network activity.
	over := writeTempFile(t, MaxBlobSize+1)
	blob, err := client.UploadBlob(context.Background(), over)
	if err != nil || blob != nil {
		t.Errorf("oversized file: got (%v, %v), want (nil, nil)", blob, err)
	}
	if pds.count(methodUploadBlob) != 0 {
		t.Errorf("uploadBlob called for an oversized file")
	}

	// Exactly at the ceiling: accepted.
	atLimit := writeTempFile(t, MaxBlobSize)
	blob, err = client.UploadBlob(context.Background(), atLimit)
	if err != nil {
		t.Fatalf("UploadBlob failed at size limit: %v", err)
	}
	if len(blob) == 0 {
		t.Errorf("expected blob reference, got none")
	}
}

func TestUploadBlobRetriesOnceAfterRefresh(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingAccessToken, testAccessJwt)
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, testAccessJwt2, testRefreshJwt2)
	})
	pds.handle(methodUploadBlob, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAccessJwt2 {
			respondXRPCError(w, http.StatusBadRequest, "ExpiredToken")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"bafkrei"},"mimeType":"image/jpeg","size":4}}`)
	})

	path := writeTempFile(t, 4)
	blob, err := client.UploadBlob(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadBlob failed: %v", err)
	}

	var ref map[string]any
	if err := json.Unmarshal(blob, &ref); err != nil {
		t.Fatalf("blob is not valid JSON: %v", err)
	}

	if pds.count(methodUploadBlob) != 2 {
		t.Errorf("uploadBlob called %d times, want 2", pds.count(methodUploadBlob))
	}
	if pds.count(methodRefreshSession) != 1 {
		t.Errorf("refreshSession called %d times, want 1", pds.count(methodRefreshSession))
	}
}

func TestUploadBlobGivesUpAfterRetry(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingAccessToken, testAccessJwt)
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, testAccessJwt2, testRefreshJwt2)
	})
	pds.handle(methodUploadBlob, func(w http.ResponseWriter, r *http.Request) {
		respondXRPCError(w, http.StatusBadRequest, "ExpiredToken")
	})

	path := writeTempFile(t, 4)
	_, err := client.UploadBlob(context.Background(), path)
	if !IsKind(err, KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	// Bounded retry: two uploads, one refresh, then give up.
	if pds.count(methodUploadBlob) != 2 {
		t.Errorf("uploadBlob called %d times, want 2", pds.count(methodUploadBlob))
	}
	if pds.count(methodRefreshSession) != 1 {
		t.Errorf("refreshSession called %d times, want 1", pds.count(methodRefreshSession))
	}
}
