package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/terra-clan/part-configurator/internal/config"
)

type route struct {
	method  string
	path    string
	id      string
	summary string
	body    *openapi3.Schema
	status  int
	result  *openapi3.Schema
	paged   bool
}

func stringMap() *openapi3.Schema {
	return openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewStringSchema())
}

func configurationSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("part_number", openapi3.NewStringSchema()).
		WithProperty("surface_treatment", openapi3.NewStringSchema()).
		WithProperty("number_of_blocks", openapi3.NewInt32Schema()).
		WithProperty("geometry_params", stringMap()).
		WithProperty("material_params", stringMap()).
		WithProperty("advanced_params", stringMap()).
		WithProperty("status", openapi3.NewStringSchema().WithEnum("draft", "completed", "exported")).
		WithProperty("schema_type", openapi3.NewStringSchema()).
		WithProperty("created_at", openapi3.NewDateTimeSchema()).
		WithProperty("updated_at", openapi3.NewDateTimeSchema())
}

func exportSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("configuration_id", openapi3.NewInt64Schema()).
		WithProperty("format", openapi3.NewStringSchema().WithEnum("STEP", "IGES", "STL", "DXF")).
		WithProperty("status", openapi3.NewStringSchema().WithEnum("pending", "processing", "completed", "failed")).
		WithProperty("file_path", openapi3.NewStringSchema()).
		WithProperty("job_id", openapi3.NewStringSchema()).
		WithProperty("error_message", openapi3.NewStringSchema()).
		WithProperty("created_at", openapi3.NewDateTimeSchema())
}

func viewerSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("model_url", openapi3.NewStringSchema()).
		WithProperty("scale", openapi3.NewArraySchema().WithItems(openapi3.NewFloat64Schema())).
		WithProperty("fallback", openapi3.NewBoolSchema()).
		WithProperty("reason", openapi3.NewStringSchema())
}

func sessionSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("schema_id", openapi3.NewStringSchema()).
		WithProperty("schema_name", openapi3.NewStringSchema()).
		WithProperty("values", stringMap()).
		WithProperty("navigation", openapi3.NewObjectSchema()).
		WithProperty("errors", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())).
		WithProperty("complete", openapi3.NewBoolSchema()).
		WithProperty("viewer", viewerSchema()).
		WithProperty("configuration_id", openapi3.NewInt64Schema())
}

func valuesBody() *openapi3.Schema {
	return openapi3.NewObjectSchema().WithProperty("values", stringMap())
}

// envelope wraps data in the standard success response
func envelope(data *openapi3.Schema) *openapi3.Schema {
	s := openapi3.NewObjectSchema().WithProperty("success", openapi3.NewBoolSchema())
	if data != nil {
		s = s.WithProperty("data", data)
	}
	return s
}

func errorEnvelope() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("error", openapi3.NewObjectSchema().
			WithProperty("code", openapi3.NewStringSchema()).
			WithProperty("message", openapi3.NewStringSchema()))
}

func routes() []route {
	obj := openapi3.NewObjectSchema
	arr := func(items *openapi3.Schema) *openapi3.Schema { return openapi3.NewArraySchema().WithItems(items) }

	return []route{
		{method: http.MethodGet, path: "/health", id: "health", summary: "Liveness check", status: http.StatusOK, result: obj()},
		{method: http.MethodGet, path: "/ready", id: "ready", summary: "Readiness of every dependency", status: http.StatusOK, result: obj()},

		{method: http.MethodGet, path: "/api/v1/schemas", id: "listSchemas", summary: "List product schemas", status: http.StatusOK, result: arr(obj())},
		{method: http.MethodGet, path: "/api/v1/schemas/{id}", id: "getSchema", summary: "Get a product schema", status: http.StatusOK, result: obj()},
		{method: http.MethodGet, path: "/api/v1/schemas/{id}/model", id: "inspectModel", summary: "Inspect the schema's 3D model", status: http.StatusOK, result: obj()},
		{method: http.MethodPost, path: "/api/v1/schemas/{id}/validate", id: "validateForm", summary: "Validate a form against a schema", body: valuesBody(), status: http.StatusOK, result: obj()},
		{method: http.MethodPost, path: "/api/v1/schemas/{id}/scale", id: "computeScale", summary: "Compute the viewer payload for a form", body: valuesBody(), status: http.StatusOK, result: viewerSchema()},

		{method: http.MethodPost, path: "/api/v1/sessions", id: "createSession", summary: "Open a configuration session",
			body: valuesBody().WithProperty("schema_id", openapi3.NewStringSchema()), status: http.StatusCreated, result: sessionSchema()},
		{method: http.MethodGet, path: "/api/v1/sessions/{id}", id: "getSession", summary: "Get session state", status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodDelete, path: "/api/v1/sessions/{id}", id: "deleteSession", summary: "Discard a session", status: http.StatusNoContent},
		{method: http.MethodPut, path: "/api/v1/sessions/{id}/values", id: "setValues", summary: "Set form values; empty values clear", body: valuesBody(), status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodDelete, path: "/api/v1/sessions/{id}/values/{key}", id: "clearValue", summary: "Clear one form value", status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodPost, path: "/api/v1/sessions/{id}/select", id: "selectStep", summary: "Toggle a step",
			body: obj().WithProperty("index", openapi3.NewInt32Schema()), status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodPost, path: "/api/v1/sessions/{id}/next", id: "nextStep", summary: "Advance to the next step", status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodPost, path: "/api/v1/sessions/{id}/reset", id: "resetSession", summary: "Clear the form", status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodPost, path: "/api/v1/sessions/{id}/schema", id: "switchSchema", summary: "Switch the session's product schema",
			body: obj().WithProperty("schema_id", openapi3.NewStringSchema()), status: http.StatusOK, result: sessionSchema()},
		{method: http.MethodPost, path: "/api/v1/sessions/{id}/apply", id: "applySession", summary: "Save the session as a configuration", status: http.StatusCreated,
			result: obj().
				WithProperty("configuration_id", openapi3.NewInt64Schema()).
				WithProperty("status", openapi3.NewStringSchema()).
				WithProperty("viewer", viewerSchema())},
		{method: http.MethodGet, path: "/api/v1/sessions/{id}/stream", id: "streamSession", summary: "Websocket stream of session state", status: http.StatusSwitchingProtocols},

		{method: http.MethodPost, path: "/api/v1/configurations", id: "createConfiguration", summary: "Create a configuration", body: configurationSchema(), status: http.StatusCreated, result: configurationSchema()},
		{method: http.MethodGet, path: "/api/v1/configurations", id: "listConfigurations", summary: "List configurations, newest first", status: http.StatusOK, result: arr(configurationSchema()), paged: true},
		{method: http.MethodGet, path: "/api/v1/configurations/{id}", id: "getConfiguration", summary: "Get a configuration", status: http.StatusOK, result: configurationSchema()},
		{method: http.MethodPatch, path: "/api/v1/configurations/{id}", id: "updateConfiguration", summary: "Update a configuration", body: configurationSchema(), status: http.StatusOK, result: configurationSchema()},
		{method: http.MethodDelete, path: "/api/v1/configurations/{id}", id: "deleteConfiguration", summary: "Delete a configuration and its exports", status: http.StatusNoContent},

		{method: http.MethodPost, path: "/api/v1/exports", id: "createExport", summary: "Request a CAD export",
			body: obj().
				WithProperty("configuration_id", openapi3.NewInt64Schema()).
				WithProperty("format", openapi3.NewStringSchema()),
			status: http.StatusCreated, result: exportSchema()},
		{method: http.MethodGet, path: "/api/v1/exports/{id}", id: "getExport", summary: "Get an export", status: http.StatusOK, result: exportSchema()},
		{method: http.MethodPatch, path: "/api/v1/exports/{id}", id: "updateExport", summary: "Report export progress", body: exportSchema(), status: http.StatusOK, result: exportSchema()},
		{method: http.MethodGet, path: "/api/v1/exports/configuration/{id}", id: "listExports", summary: "List exports of a configuration", status: http.StatusOK, result: arr(exportSchema()), paged: true},
	}
}

// pathParams returns the {name} segments of a path template
func pathParams(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			out = append(out, strings.Trim(seg, "{}"))
		}
	}
	return out
}

// NewOpenAPIDocument describes the HTTP API
func NewOpenAPIDocument() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       config.ServiceName,
			Description: "Parametric part configuration and CAD export",
			Version:     config.Version,
		},
		Paths: openapi3.NewPaths(),
	}

	for _, rt := range routes() {
		op := openapi3.NewOperation()
		op.OperationID = rt.id
		op.Summary = rt.summary

		for _, name := range pathParams(rt.path) {
			schema := openapi3.NewStringSchema()
			if name == "id" && !strings.Contains(rt.path, "/schemas/") && !strings.Contains(rt.path, "/sessions/") {
				schema = openapi3.NewInt64Schema()
			}
			op.AddParameter(openapi3.NewPathParameter(name).WithSchema(schema))
		}
		if rt.paged {
			op.AddParameter(openapi3.NewQueryParameter("skip").WithSchema(openapi3.NewInt32Schema().WithMin(0)))
			op.AddParameter(openapi3.NewQueryParameter("limit").WithSchema(openapi3.NewInt32Schema().WithMin(1).WithMax(100)))
		}
		if rt.body != nil {
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(rt.body),
			}
		}

		ok := openapi3.NewResponse().WithDescription(http.StatusText(rt.status))
		if rt.result != nil {
			ok = ok.WithJSONSchema(envelope(rt.result))
		}
		op.AddResponse(rt.status, ok)
		op.AddResponse(0, openapi3.NewResponse().WithDescription("Error").WithJSONSchema(errorEnvelope()))

		doc.AddOperation(rt.path, rt.method, op)
	}

	return doc
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.openapiOnce.Do(func() {
		s.openapiJSON, s.openapiErr = json.Marshal(NewOpenAPIDocument())
	})
	if s.openapiErr != nil {
		slog.Error("failed to render openapi document", "error", s.openapiErr)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to render openapi document")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(s.openapiJSON); err != nil {
		slog.Debug("failed to write openapi document", "error", err)
	}
}
