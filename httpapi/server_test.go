package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/docstore"
	"gocloud.dev/docstore/memdocstore"

	"github.com/bgadrian/docroom"
	"github.com/bgadrian/docroom/auth"
	"github.com/bgadrian/docroom/metastore"
)

func newTestAPI(t *testing.T) (*httptest.Server, *docstore.Collection) {
	t.Helper()

	meta, err := metastore.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	coll, err := memdocstore.OpenCollection("id", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })

	snapshots := docroom.NewSnapshotStore(coll, meta, zerolog.Nop())
	tokens := auth.NewTokenIssuer("test-secret", time.Minute)

	srv := httptest.NewServer(New(meta, snapshots, tokens, zerolog.Nop()).Routes())
	t.Cleanup(srv.Close)
	return srv, coll
}

// newClient returns a client with a cookie jar, so the login cookie sticks.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func signupAndLogin(t *testing.T, client *http.Client, baseURL, username string) {
	t.Helper()

	resp, _ := doJSON(t, client, http.MethodPost, baseURL+"/api/signup",
		map[string]string{"username": username, "password": "hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/api/login",
		map[string]string{"username": username, "password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_SignupValidation(t *testing.T) {
	srv, _ := newTestAPI(t)
	client := newClient(t)

	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/signup",
		map[string]string{"username": "alice", "password": "hunter2"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/signup",
		map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "username already registered", body["error"])

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/signup",
		map[string]string{"username": "  ", "password": "hunter2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_LoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestAPI(t)
	client := newClient(t)

	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/signup",
		map[string]string{"username": "alice", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/login",
		map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/login",
		map[string]string{"username": "nobody", "password": "hunter2"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_DocumentsRequireAuthentication(t *testing.T) {
	srv, _ := newTestAPI(t)
	client := newClient(t)

	resp, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/documents", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CreateSeedsSnapshotAndLists(t *testing.T) {
	srv, coll := newTestAPI(t)
	client := newClient(t)
	signupAndLogin(t, client, srv.URL, "alice")

	resp, created := doJSON(t, client, http.MethodPost, srv.URL+"/api/documents",
		map[string]string{"title": "meeting notes"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	docID, _ := created["id"].(string)
	require.NotEmpty(t, docID)
	assert.Contains(t, docID, "doc_")

	// document creation writes the empty default snapshot
	latest := docroom.SnapshotDoc{ID: docID}
	require.NoError(t, coll.Get(context.Background(), &latest))
	assert.JSONEq(t, `{"ops":[]}`, latest.Content)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/documents", nil)
	require.NoError(t, err)
	listResp, err := client.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var docs []map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&docs))
	require.Len(t, docs, 1)
	assert.Equal(t, docID, docs[0]["id"])
	assert.Equal(t, "meeting notes", docs[0]["title"])
}

func TestAPI_CreateRequiresTitle(t *testing.T) {
	srv, _ := newTestAPI(t)
	client := newClient(t)
	signupAndLogin(t, client, srv.URL, "alice")

	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/documents",
		map[string]string{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_DeleteEnforcesOwnership(t *testing.T) {
	srv, _ := newTestAPI(t)
	owner := newClient(t)
	signupAndLogin(t, owner, srv.URL, "alice")

	resp, created := doJSON(t, owner, http.MethodPost, srv.URL+"/api/documents",
		map[string]string{"title": "private"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	docID := created["id"].(string)

	intruder := newClient(t)
	signupAndLogin(t, intruder, srv.URL, "bob")

	resp, _ = doJSON(t, intruder, http.MethodDelete, fmt.Sprintf("%s/api/documents/%s", srv.URL, docID), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, owner, http.MethodDelete, srv.URL+"/api/documents/doc_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, owner, http.MethodDelete, fmt.Sprintf("%s/api/documents/%s", srv.URL, docID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_LogoutClearsCookie(t *testing.T) {
	srv, _ := newTestAPI(t)
	client := newClient(t)
	signupAndLogin(t, client, srv.URL, "alice")

	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/documents", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
