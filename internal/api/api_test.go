package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/configuration"
	"github.com/terra-clan/part-configurator/internal/exporter"
	"github.com/terra-clan/part-configurator/internal/health"
	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/storage"
)

type envelopeResp struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type testEnv struct {
	server *Server
	repo   *storage.MemoryRepository
	health *health.Registry
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	repo := storage.NewMemoryRepository()
	registry := catalog.MustBuiltin()
	m := metrics.New()
	sessions := session.NewManager(session.NewMemoryStore(), registry, session.WithMetrics(m))
	configs := configuration.NewService(repo, sessions, m)
	hr := health.NewRegistry(0)

	srv := NewServer(Dependencies{
		Schemas:        registry,
		Sessions:       sessions,
		Configurations: configs,
		Exports:        exporter.NewService(repo, configs, m),
		Repo:           repo,
		Health:         hr,
		Metrics:        m,
	}, opts)

	return &testEnv{server: srv, repo: repo, health: hr}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

// decode unpacks the response envelope, filling out with data when given
func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) envelopeResp {
	t.Helper()

	var env envelopeResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

// stateOf decodes a session state into a fresh value so maps never carry over
func stateOf(t *testing.T, rec *httptest.ResponseRecorder) session.State {
	t.Helper()
	var st session.State
	decode(t, rec, &st)
	return st
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	env := decode(t, rec, &body)
	assert.True(t, env.Success)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "SKF CAD Configurator API", body["service"])
}

func TestReady(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.health.Register("database", health.CheckerFunc(func(ctx context.Context) error { return nil }))

	rec := e.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	e.health.Register("nats", health.CheckerFunc(func(ctx context.Context) error {
		return errors.New("nats: connection closed")
	}))

	rec = e.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report health.Report
	env := decode(t, rec, &report)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_ready", env.Error.Code)
	assert.Equal(t, "ok", report.Checks["database"])
	assert.Equal(t, "nats: connection closed", report.Checks["nats"])
}

func TestSchemas(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodGet, "/api/v1/schemas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Summary
	decode(t, rec, &list)
	assert.Len(t, list, 5)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas/hydraulic", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var schema models.Schema
	decode(t, rec, &schema)
	assert.Equal(t, "HYDRAULIC", schema.ID)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas/GEARBOX", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas/HYDRAULIC/model", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "model assets are not configured")
}

func TestValidateForm(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/v1/schemas/HYDRAULIC/validate", ValidateRequest{
		Values: models.FormState{"IDNR": "7"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res ValidateResponse
	decode(t, rec, &res)
	assert.False(t, res.Complete)
	require.Contains(t, res.Steps, "identification")
	assert.False(t, res.Steps["identification"].Valid)
	assert.True(t, res.Steps["description"].Valid)

	rec = e.do(t, http.MethodPost, "/api/v1/schemas/HYDRAULIC/validate", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{
		SchemaID: "HYDRAULIC",
		Values:   models.FormState{"IDNR": "7"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	st := stateOf(t, rec)
	assert.Equal(t, "HYDRAULIC", st.SchemaID)
	assert.False(t, st.Complete)
	base := "/api/v1/sessions/" + st.ID

	rec = e.do(t, http.MethodPut, base+"/values", models.SetValuesRequest{Values: models.FormState{"ARTICLE_ID": "HX-200"}})
	require.Equal(t, http.StatusOK, rec.Code)
	st = stateOf(t, rec)
	assert.True(t, st.Complete)

	rec = e.do(t, http.MethodDelete, base+"/values/ARTICLE_ID", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = stateOf(t, rec)
	assert.False(t, st.Complete)
	assert.NotContains(t, st.Values, "ARTICLE_ID")

	rec = e.do(t, http.MethodPut, base+"/values", models.SetValuesRequest{Values: models.FormState{"COLOR": "red"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec = e.do(t, http.MethodPut, base+"/values", models.SetValuesRequest{Values: models.FormState{"ARTICLE_NAME": "<script>x</script>"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env = decode(t, rec, nil)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec = e.do(t, http.MethodPut, base+"/values", models.SetValuesRequest{Values: models.FormState{"ARTICLE_ID": "HX-200", "ARTICLE_NAME": "A<B"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Value("A<B"), stateOf(t, rec).Values["ARTICLE_NAME"])

	rec = e.do(t, http.MethodPost, base+"/apply", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var applied models.ApplyResult
	decode(t, rec, &applied)
	assert.Equal(t, models.ConfigurationCompleted, applied.Status)

	rec = e.do(t, http.MethodGet, "/api/v1/configurations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var configs []models.Configuration
	decode(t, rec, &configs)
	require.Len(t, configs, 1)
	assert.Equal(t, "HX-200", configs[0].PartNumber)

	rec = e.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = stateOf(t, rec)
	require.NotNil(t, st.ConfigurationID)
	assert.Equal(t, applied.ConfigurationID, *st.ConfigurationID)

	rec = e.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionNavigationAndSchemaSwitch(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{SchemaID: "GEARBOX"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)
	st := stateOf(t, rec)
	assert.Equal(t, "LINEAR_GUIDE", st.SchemaID, "default schema")
	base := "/api/v1/sessions/" + st.ID

	rec = e.do(t, http.MethodPost, base+"/select", models.SelectStepRequest{Index: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	st = stateOf(t, rec)
	assert.Equal(t, models.NoActiveStep, st.Navigation.ActiveStep, "selecting the open step collapses it")

	rec = e.do(t, http.MethodPost, base+"/schema", models.SwitchSchemaRequest{SchemaID: "HYDRAULIC"})
	require.Equal(t, http.StatusOK, rec.Code)
	st = stateOf(t, rec)
	assert.Equal(t, "HYDRAULIC", st.SchemaID)
	assert.Empty(t, st.Values)

	rec = e.do(t, http.MethodPost, base+"/schema", models.SwitchSchemaRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = stateOf(t, rec)
	assert.Equal(t, 0, st.Navigation.ActiveStep)

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/missing/next", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigurationCRUD(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/v1/configurations", models.CreateConfigurationRequest{PartNumber: ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for _, pn := range []string{"SKF-1", "SKF-2", "SKF-3"} {
		rec = e.do(t, http.MethodPost, "/api/v1/configurations", models.CreateConfigurationRequest{PartNumber: pn})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/configurations?skip=1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Configuration
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "SKF-2", list[0].PartNumber)

	rec = e.do(t, http.MethodGet, "/api/v1/configurations?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/configurations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pn := "SKF-1B"
	rec = e.do(t, http.MethodPatch, "/api/v1/configurations/1", models.UpdateConfigurationRequest{PartNumber: &pn})
	require.Equal(t, http.StatusOK, rec.Code)
	var c models.Configuration
	decode(t, rec, &c)
	assert.Equal(t, "SKF-1B", c.PartNumber)

	rec = e.do(t, http.MethodDelete, "/api/v1/configurations/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/configurations/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPatch, "/api/v1/configurations/1", models.UpdateConfigurationRequest{PartNumber: &pn})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportFlow(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/v1/configurations", models.CreateConfigurationRequest{PartNumber: "SKF-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c models.Configuration
	decode(t, rec, &c)

	rec = e.do(t, http.MethodPost, "/api/v1/exports", models.CreateExportRequest{ConfigurationID: c.ID, Format: "OBJ"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/exports", models.CreateExportRequest{ConfigurationID: 99, Format: "STEP"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/exports", models.CreateExportRequest{ConfigurationID: c.ID, Format: "STEP"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var exp models.Export
	decode(t, rec, &exp)
	assert.Equal(t, models.ExportPending, exp.Status)

	rec = e.do(t, http.MethodGet, "/api/v1/exports/configuration/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Export
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	completed := models.ExportCompleted
	path := "/exports/1.step"
	rec = e.do(t, http.MethodPatch, "/api/v1/exports/1", models.UpdateExportRequest{Status: &completed, FilePath: &path})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &exp)
	assert.Equal(t, path, exp.FilePath)

	rec = e.do(t, http.MethodGet, "/api/v1/configurations/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &c)
	assert.Equal(t, models.ConfigurationExported, c.Status)

	rec = e.do(t, http.MethodGet, "/api/v1/exports/2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthentication(t *testing.T) {
	e := newTestEnv(t, Options{AuthEnabled: true})
	e.repo.AddClient(&models.ApiClient{
		ID:          1,
		Name:        "viewer",
		ApiKey:      "cfg_viewer_key",
		IsActive:    true,
		Permissions: []string{"schemas:read"},
	})
	e.repo.AddClient(&models.ApiClient{
		ID:       2,
		Name:     "retired",
		ApiKey:   "cfg_retired_key",
		IsActive: false,
	})

	rec := e.do(t, http.MethodGet, "/api/v1/schemas", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas", nil, "Authorization", "Bearer cfg_viewer_key")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas", nil, "X-API-Key", "cfg_viewer_key")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas", nil, "X-API-Key", "cfg_retired_key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/schemas", nil, "X-API-Key", "cfg_unknown_key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/configurations", models.CreateConfigurationRequest{PartNumber: "P"},
		"Authorization", "cfg_viewer_key")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, Options{})

	e.do(t, http.MethodGet, "/api/v1/configurations/7", nil)

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "configurator_http_requests_total")
	assert.Contains(t, body, `route="/api/v1/configurations/{id}`)
}

func TestOpenAPIDocument(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := openapi3.NewLoader().LoadFromData(rec.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))

	assert.Equal(t, "SKF CAD Configurator API", doc.Info.Title)
	apply := doc.Paths.Value("/api/v1/sessions/{id}/apply")
	require.NotNil(t, apply)
	require.NotNil(t, apply.Post)
	assert.Equal(t, "applySession", apply.Post.OperationID)
	assert.NotNil(t, doc.Paths.Value("/api/v1/exports/configuration/{id}"))
}

func TestPathParams(t *testing.T) {
	assert.Equal(t, []string{"id", "key"}, pathParams("/api/v1/sessions/{id}/values/{key}"))
	assert.Nil(t, pathParams("/health"))
}

func TestSessionStream(t *testing.T) {
	e := newTestEnv(t, Options{})
	ts := httptest.NewServer(e.server.Router())
	defer ts.Close()

	rec := e.do(t, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{SchemaID: "HYDRAULIC"})
	require.Equal(t, http.StatusCreated, rec.Code)
	st := stateOf(t, rec)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + st.ID + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Type)
	require.NotNil(t, msg.State)
	assert.Equal(t, st.ID, msg.State.ID)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: "set_values", Values: models.FormState{"IDNR": "7", "ARTICLE_ID": "HX-9"}}))
	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Type)
	require.NotNil(t, msg.State)
	assert.True(t, msg.State.Complete)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: "set", Key: "WIDTH", Value: "3"}))
	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown parameter")

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: "apply"}))
	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "applied", msg.Type)
	require.NotNil(t, msg.Result)
	assert.Equal(t, models.ConfigurationCompleted, msg.Result.Status)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: "teleport"}))
	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestSessionStreamUnknownSession(t *testing.T) {
	e := newTestEnv(t, Options{})
	rec := e.do(t, http.MethodGet, "/api/v1/sessions/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
