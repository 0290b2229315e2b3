package http_handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/config"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/service"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/service/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testServer(t *testing.T) (*Server, *mocks.MockObjectStore, *mocks.MockFileRecorder) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	cfg := config.DefaultConfig()
	cfg.Upload.ChunkSize = 4
	cfg.Upload.MaxFileSize = 100

	objects := mocks.NewMockObjectStore(ctrl)
	recorder := mocks.NewMockFileRecorder(ctrl)
	idGen := mocks.NewMockIDGenerator(ctrl)

	var next int64
	idGen.EXPECT().Next().DoAndReturn(func() (int64, error) {
		next++
		return next, nil
	}).AnyTimes()

	svc := service.NewUploadService(cfg, objects, idGen, service.SystemClock{})
	return NewServer(cfg, svc, recorder), objects, recorder
}

func doJSON(t *testing.T, srv *Server, method, target, owner string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set("X-Owner-Id", owner)
	}

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)

	payload := map[string]json.RawMessage{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return resp, payload
}

func putChunk(t *testing.T, srv *Server, uploadID string, index int, data []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut,
		fmt.Sprintf("/uploads/%s/chunks/%d", uploadID, index), bytes.NewReader(data))
	req.Header.Set("X-Owner-Id", "owner-1")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func initUpload(t *testing.T, srv *Server, fileName string, size int64) string {
	t.Helper()
	resp, payload := doJSON(t, srv, http.MethodPost, "/uploads", "owner-1", map[string]any{
		"file_name": fileName,
		"file_size": size,
		"file_type": "application/zip",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var uploadID string
	require.NoError(t, json.Unmarshal(payload["upload_id"], &uploadID))
	return uploadID
}

func TestServer_RequiresOwnerHeader(t *testing.T) {
	srv, _, _ := testServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/uploads", "", map[string]any{
		"file_name": "a.zip",
		"file_size": 10,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_InitValidation(t *testing.T) {
	srv, _, _ := testServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/uploads", "owner-1", map[string]any{
		"file_name": "a.zip",
		"file_size": 0,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, "/uploads", "owner-1", map[string]any{
		"file_size": 10,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_FullUploadRoundTrip(t *testing.T) {
	srv, objects, recorder := testServer(t)

	uploadID := initUpload(t, srv, "a.zip", 10)

	for i, chunk := range [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ij")} {
		resp := putChunk(t, srv, uploadID, i, chunk)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	objects.EXPECT().
		Store(gomock.Any(), gomock.Any(), []byte("abcdefghij"), "application/zip").
		Return("bucket/key", nil)
	recorder.EXPECT().
		CreateFileRecord(gomock.Any(), "bucket/key", "a.zip", int64(10), "application/zip", "owner-1", "").
		Return("file-42", nil)

	resp, payload := doJSON(t, srv, http.MethodPost, "/uploads/"+uploadID+"/complete", "owner-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fileID string
	require.NoError(t, json.Unmarshal(payload["file_id"], &fileID))
	require.Equal(t, "file-42", fileID)
}

func TestServer_IncompleteCompletionListsMissing(t *testing.T) {
	srv, _, _ := testServer(t)

	uploadID := initUpload(t, srv, "a.zip", 10)
	require.Equal(t, http.StatusOK, putChunk(t, srv, uploadID, 0, []byte("abcd")).StatusCode)

	resp, payload := doJSON(t, srv, http.MethodPost, "/uploads/"+uploadID+"/complete", "owner-1", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var missing []int
	require.NoError(t, json.Unmarshal(payload["missing_indices"], &missing))
	require.Equal(t, []int{1, 2}, missing)
}

func TestServer_ErrorMapping(t *testing.T) {
	srv, _, _ := testServer(t)
	uploadID := initUpload(t, srv, "a.zip", 10)

	// Unknown session.
	resp, _ := doJSON(t, srv, http.MethodGet, "/uploads/99999", "owner-1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Out-of-range index.
	require.Equal(t, http.StatusBadRequest, putChunk(t, srv, uploadID, 7, []byte("abcd")).StatusCode)

	// Cancel, then writes vanish.
	resp, _ = doJSON(t, srv, http.MethodDelete, "/uploads/"+uploadID, "owner-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, http.StatusNotFound, putChunk(t, srv, uploadID, 0, []byte("abcd")).StatusCode)
}

func TestServer_ListOwnerUploads(t *testing.T) {
	srv, _, _ := testServer(t)

	uploadID := initUpload(t, srv, "a.zip", 10)

	resp, payload := doJSON(t, srv, http.MethodGet, "/uploads", "owner-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploads []map[string]any
	require.NoError(t, json.Unmarshal(payload["uploads"], &uploads))
	require.Len(t, uploads, 1)
	require.Equal(t, uploadID, uploads[0]["upload_id"])

	// Another owner sees nothing.
	resp, payload = doJSON(t, srv, http.MethodGet, "/uploads", "owner-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(payload["uploads"], &uploads))
	require.Len(t, uploads, 0)
}
