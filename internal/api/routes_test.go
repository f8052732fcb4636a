package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"bibkeys/internal/config"
	"bibkeys/internal/database"
	"bibkeys/internal/keys"
	"bibkeys/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBib = `@article{smith2020,
  author = {Smith, John},
  title = {First Paper},
  year = {2020}
}

@article{smith2020,
  author = {Smith, Jane},
  title = {Second Paper},
  year = {2020}
}
`

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	r, _ := setupRouterWith(t, config.NewConfig().Server)
	return r
}

// setupRouterWith returns a router over an in-memory database and the
// directory attached files are stored in.
func setupRouterWith(t *testing.T, cfg config.ServerConfig) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.InitDB(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	storage := t.TempDir()
	projects := services.NewProjectService(db, keys.DefaultOptions(), storage)
	bib := services.NewBibTexService(projects, keys.DefaultOptions())
	return NewRouter(cfg, zerolog.Nop(), projects, bib), storage
}

func do(r http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	w := do(setupRouter(t), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestDedupeEndpoint(t *testing.T) {
	w := do(setupRouter(t), http.MethodPost, "/api/dedupe", "text/plain", []byte(sampleBib))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Contains(t, body["bibtex"], "@article{smith2020_1,")
	assert.EqualValues(t, 2, body["count"])
	renames := body["renames"].([]interface{})
	require.Len(t, renames, 1)
	assert.Equal(t, "smith2020_1", renames[0].(map[string]interface{})["to"])
}

func TestDedupeEndpointMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "refs.bib")
	require.NoError(t, err)
	_, err = part.Write([]byte(sampleBib))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := do(setupRouter(t), http.MethodPost, "/api/dedupe", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["bibtex"], "smith2020_1")
}

func TestDedupeEndpointErrors(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/dedupe", "text/plain", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/dedupe", "text/plain", []byte("@article{k title = {x}}"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "BAD_REQUEST", errBody["type"])
}

func TestDuplicatesEndpoint(t *testing.T) {
	w := do(setupRouter(t), http.MethodPost, "/api/duplicates", "text/plain", []byte(sampleBib))
	require.Equal(t, http.StatusOK, w.Code)

	groups := decode(t, w)["duplicates"].([]interface{})
	require.Len(t, groups, 1)
	group := groups[0].(map[string]interface{})
	assert.Equal(t, "smith2020", group["key"])
	assert.EqualValues(t, 2, group["count"])
	refs := group["references"].([]interface{})
	assert.Equal(t, "Second Paper", refs[1].(map[string]interface{})["title"])
}

func TestProjectLifecycle(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/projects", "application/json", []byte(`{"name":"thesis"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/projects", "application/json", []byte(`{"name":"thesis"}`))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/projects", "application/json", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/projects/thesis/import", "text/plain", []byte(sampleBib))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["renames"], 1)

	w = do(r, http.MethodPost, "/api/projects/thesis/references", "application/json",
		[]byte(`{"key":"smith2020","entry_type":"misc","fields":{"title":"Clash"}}`))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/projects/thesis/references", "application/json",
		[]byte(`{"key":"doe2019","entry_type":"misc","fields":{"title":"Notes on Things","author":"Doe, Jane","year":"2019"}}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Doe_2019_Notes_on_Things.pdf", decode(t, w)["suggested_filename"])

	w = do(r, http.MethodGet, "/api/projects/thesis/references/smith2020_1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ref := decode(t, w)["reference"].(map[string]interface{})
	assert.Equal(t, "smith2020", ref["original_key"])

	w = do(r, http.MethodGet, "/api/projects/thesis/export", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/x-bibtex"))
	assert.Contains(t, w.Body.String(), "@article{smith2020_1,")
	assert.Contains(t, w.Body.String(), "@misc{doe2019,")

	w = do(r, http.MethodDelete, "/api/projects/thesis/references/doe2019", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodDelete, "/api/projects/thesis/references/doe2019", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/projects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["projects"], 1)

	w = do(r, http.MethodDelete, "/api/projects/thesis", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/projects/thesis", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportUnknownProject(t *testing.T) {
	w := do(setupRouter(t), http.MethodPost, "/api/projects/missing/import", "text/plain", []byte(sampleBib))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthEnabledRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.NewConfig().Server
	cfg.JWTSecret = "s3cret"
	r := NewRouter(cfg, zerolog.Nop(), nil, services.NewBibTexService(nil, keys.DefaultOptions()))

	w := do(r, http.MethodPost, "/api/dedupe", "text/plain", []byte(sampleBib))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	cfg := config.NewConfig().Server
	cfg.MaxUploadBytes = 64
	r, _ := setupRouterWith(t, cfg)

	w := do(r, http.MethodPost, "/api/dedupe", "text/plain", []byte(sampleBib))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	errBody := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errBody["type"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "refs.bib")
	require.NoError(t, err)
	_, err = part.Write([]byte(sampleBib))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w = do(r, http.MethodPost, "/api/dedupe", mw.FormDataContentType(), buf.Bytes())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

func TestAttachFileEndpoint(t *testing.T) {
	r, storage := setupRouterWith(t, config.NewConfig().Server)

	w := do(r, http.MethodPost, "/api/projects", "application/json", []byte(`{"name":"thesis"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodPost, "/api/projects/thesis/references", "application/json",
		[]byte(`{"key":"doe2019","entry_type":"misc","fields":{"title":"Notes on Things","author":"Doe, Jane","year":"2019"}}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "download.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w = do(r, http.MethodPut, "/api/projects/thesis/references/doe2019/file", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	want := filepath.Join(storage, "thesis", "Doe_2019_Notes_on_Things.pdf")
	ref := decode(t, w)["reference"].(map[string]interface{})
	assert.Equal(t, want, ref["file_path"])
	assert.FileExists(t, want)

	w = do(r, http.MethodPut, "/api/projects/thesis/references/doe2019/file", "application/pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/projects/thesis/references/missing/file", "application/pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
