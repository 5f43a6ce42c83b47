package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/server/auth"
	"github.com/dmitrijs2005/photodrop/internal/server/objectstore"
	"github.com/dmitrijs2005/photodrop/internal/server/recordstore"
	"github.com/dmitrijs2005/photodrop/internal/server/submissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPasscode = "letmein"

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	coll := recordstore.NewFolderCollection(objectstore.NewMemoryBackend(nil), "Submissions", logging.Discard())
	svc := submissions.NewService(coll, 0, logging.Discard())
	gate := auth.NewGate(testPasscode, "k", time.Minute)

	ts := httptest.NewServer(NewServer(opts, svc, gate, logging.Discard()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, url string, photo []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("file", "a_b.com-A101-1.jpg")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func login(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Post(url+"/login", "application/json", strings.NewReader(`{"passcode":"`+testPasscode+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lr models.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	require.NotEmpty(t, lr.Token)
	return lr.Token
}

func authed(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, msgRunning, string(body))
}

func TestUploadListDeleteFlow(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigin: "*"})

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, jpegBytes(t, 800, 600), map[string]string{
		"email": "a@b.com", "folderNumber": "A101",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var up models.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.NotEmpty(t, up.ID)
	assert.Equal(t, "a_b.com-A101-1.jpg", up.Name)
	assert.Equal(t, msgUploaded, up.Message)

	token := login(t, ts.URL)

	list := authed(t, http.MethodGet, ts.URL+"/submissions", token)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)
	var got []models.Submission
	require.NoError(t, json.NewDecoder(list.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, up.ID, got[0].ID)
	assert.Equal(t, "a@b.com", got[0].Email)
	assert.Equal(t, "A101", got[0].FolderNumber)
	assert.Equal(t, recordstore.PhotoPath(up.ID), got[0].PhotoRef)

	photo := authed(t, http.MethodGet, ts.URL+got[0].PhotoRef, token)
	defer photo.Body.Close()
	require.Equal(t, http.StatusOK, photo.StatusCode)
	assert.Equal(t, "image/jpeg", photo.Header.Get("Content-Type"))
	img, err := jpeg.Decode(photo.Body)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())

	del := authed(t, http.MethodDelete, ts.URL+"/submissions/"+up.ID, token)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	del = authed(t, http.MethodDelete, ts.URL+"/submissions/"+up.ID, token)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNotFound, del.StatusCode)
	var er models.ErrorResponse
	require.NoError(t, json.NewDecoder(del.Body).Decode(&er))
	assert.Equal(t, msgNotFound, er.Message)
}

func TestUpload_NoFile(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, nil, map[string]string{"email": "a@b.com", "folderNumber": "1"}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var er models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, msgNoFile, er.Message)
}

func TestUpload_MissingFields(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, jpegBytes(t, 2, 2), map[string]string{"email": "a@b.com"}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var er models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Contains(t, er.Message, "required")
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadBytes: 1024})

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, bytes.Repeat([]byte{0xff}, 4096), map[string]string{
		"email": "a@b.com", "folderNumber": "1",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestOperatorRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/submissions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = authed(t, http.MethodDelete, ts.URL+"/submissions/x", "garbage")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_WrongPasscode(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"passcode":"nope"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigin: "https://kiosk.local"})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/upload", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://kiosk.local", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

type storeDown struct{ Submissions }

func (storeDown) List(context.Context) ([]models.Submission, error) {
	return nil, common.NewStoreError("list", 500, errors.New("backend error"))
}

type allowAll struct{}

func (allowAll) Login(string) (string, error) { return "t", nil }
func (allowAll) Verify(string) error          { return nil }

func TestList_StoreFailure(t *testing.T) {
	srv := NewServer(Options{}, storeDown{}, allowAll{}, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+"t")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var er models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
	assert.Equal(t, msgListFailed, er.Message)
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv := NewServer(Options{Addr: "127.0.0.1:0"}, storeDown{}, allowAll{}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
