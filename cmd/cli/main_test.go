package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI 模拟 docconv API，记录最后一次请求
type fakeAPI struct {
	lastPath  string
	lastQuery string
	lastBody  []byte
	lastAuth  string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastPath = r.URL.Path
	f.lastQuery = r.URL.RawQuery
	f.lastAuth = r.Header.Get("Authorization")
	f.lastBody, _ = io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/health":
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case "/api/formats":
		_, _ = w.Write([]byte(`{"formats":[{"id":"md","name":"Markdown","category":"MARKUP"}],"total":1}`))
	case "/api/formats/md/targets":
		_, _ = w.Write([]byte(`{"targets":[{"id":"html"},{"id":"pdf"}]}`))
	case "/api/documents":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"doc-1","name":"a.md","format":{"id":"md"},"size":5}`))
	case "/api/convert":
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"type":"initializing"}` + "\n" +
			`{"type":"processing","progress":0.5}` + "\n" +
			`{"type":"completed","result":{"success":true,"output":{"id":"doc-2"}}}` + "\n"))
	case "/api/batch":
		_, _ = w.Write([]byte(`{"total_documents":2,"processed_documents":1,"current_document":{"id":"b"}}` + "\n" +
			`{"total_documents":2,"processed_documents":2,"results":[{"source":{"id":"a"},"output":{"id":"a2"}}],"failed":[{"document":{"id":"b"},"reason":"boom"}]}` + "\n"))
	case "/api/verify":
		_, _ = w.Write([]byte(`{"type":"verifying"}` + "\n" +
			`{"type":"completed","result":{"success":true,"overall_score":0.97,"minimum_threshold":0.9}}` + "\n"))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"document not found"}`))
	}
}

func newTestClient(t *testing.T) (*resty.Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	t.Setenv("DOCCONV_API_URL", srv.URL)
	t.Setenv("DOCCONV_TOKEN", "tok")
	return newClient(), api
}

func TestRun_FormatsAndTargets(t *testing.T) {
	c, api := newTestClient(t)
	var out bytes.Buffer
	require.NoError(t, run(c, "formats", nil, &out))
	assert.Contains(t, out.String(), "md")
	assert.Contains(t, out.String(), "Markdown")
	assert.Equal(t, "Bearer tok", api.lastAuth)

	out.Reset()
	require.NoError(t, run(c, "targets", []string{"md"}, &out))
	assert.Equal(t, "html pdf\n", out.String())
}

func TestRun_Upload(t *testing.T) {
	c, api := newTestClient(t)
	path := filepath.Join(t.TempDir(), "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# Hi\n"), 0644))

	var out bytes.Buffer
	require.NoError(t, run(c, "upload", []string{path}, &out))
	assert.Equal(t, "doc-1\tmd\t5\n", out.String())
	assert.Equal(t, "name=a.md", api.lastQuery)
	assert.Equal(t, "# Hi\n", string(api.lastBody))
}

func TestRun_ConvertStreamsProgress(t *testing.T) {
	c, api := newTestClient(t)
	var out bytes.Buffer
	require.NoError(t, run(c, "convert", []string{"doc-1", "html"}, &out))
	assert.Contains(t, out.String(), "processing  50%")
	assert.Contains(t, out.String(), `"id": "doc-2"`)
	assert.Equal(t, "stream=true", api.lastQuery)

	var body map[string]string
	require.NoError(t, json.Unmarshal(api.lastBody, &body))
	assert.Equal(t, "doc-1", body["document_id"])
	assert.Equal(t, "html", body["target"])
}

func TestRun_BatchReportsFailures(t *testing.T) {
	c, _ := newTestClient(t)
	var out bytes.Buffer
	err := run(c, "batch", []string{"html", "a", "b"}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "1/2")
	assert.Contains(t, out.String(), "ok\ta\ta2")
	assert.Contains(t, out.String(), "failed\tb\tboom")
}

func TestRun_Verify(t *testing.T) {
	c, _ := newTestClient(t)
	var out bytes.Buffer
	require.NoError(t, run(c, "verify", []string{"a", "a2"}, &out))
	assert.Contains(t, out.String(), `"overall_score": 0.97`)
}

func TestRun_ErrorsAndUsage(t *testing.T) {
	c, _ := newTestClient(t)
	var out bytes.Buffer

	err := run(c, "download", []string{"missing"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404 document not found")

	err = run(c, "convert", []string{"only-id"}, &out)
	var usage usageError
	require.ErrorAs(t, err, &usage)

	require.Error(t, run(c, "bogus", nil, &out))
	assert.Contains(t, out.String(), "Usage: docconv")

	out.Reset()
	require.NoError(t, run(c, "version", nil, &out))
	assert.Equal(t, version+"\n", out.String())
}
