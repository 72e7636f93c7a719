package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/preview"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// Client is a Go SDK for the configurator API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new configurator client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx answer from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// HealthStatus is the /health answer
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ValidationReport is the per-step outcome of validating a form
type ValidationReport struct {
	SchemaID string                           `json:"schema_id"`
	Steps    map[string]validation.StepResult `json:"steps"`
	Complete bool                             `json:"complete"`
}

type valuesBody struct {
	Values models.FormState `json:"values"`
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.call(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Schemas

// ListSchemas returns the summaries of every product schema
func (c *Client) ListSchemas(ctx context.Context) ([]models.Summary, error) {
	var out []models.Summary
	if err := c.call(ctx, http.MethodGet, "/api/v1/schemas", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSchema returns a full product schema by tag or slug
func (c *Client) GetSchema(ctx context.Context, id string) (*models.Schema, error) {
	var out models.Schema
	if err := c.call(ctx, http.MethodGet, "/api/v1/schemas/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks a form against a schema without opening a session
func (c *Client) Validate(ctx context.Context, schemaID string, values models.FormState) (*ValidationReport, error) {
	var out ValidationReport
	path := "/api/v1/schemas/" + url.PathEscape(schemaID) + "/validate"
	if err := c.call(ctx, http.MethodPost, path, valuesBody{Values: values}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scale returns the viewer payload a form produces
func (c *Client) Scale(ctx context.Context, schemaID string, values models.FormState) (*models.ViewerPayload, error) {
	var out models.ViewerPayload
	path := "/api/v1/schemas/" + url.PathEscape(schemaID) + "/scale"
	if err := c.call(ctx, http.MethodPost, path, valuesBody{Values: values}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InspectModel returns the summary of a schema's 3D model asset
func (c *Client) InspectModel(ctx context.Context, schemaID string) (*preview.ModelInfo, error) {
	var out preview.ModelInfo
	path := "/api/v1/schemas/" + url.PathEscape(schemaID) + "/model"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions

func sessionPath(id string, parts ...string) string {
	p := "/api/v1/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) sessionCall(ctx context.Context, method, path string, in interface{}) (*session.State, error) {
	var out session.State
	if err := c.call(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession opens a session; an empty schemaID uses the default schema
func (c *Client) CreateSession(ctx context.Context, schemaID string, values models.FormState) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{SchemaID: schemaID, Values: values})
}

// GetSession returns the current state of a session
func (c *Client) GetSession(ctx context.Context, id string) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodGet, sessionPath(id), nil)
}

// SetValues sets form values; an empty value clears its key
func (c *Client) SetValues(ctx context.Context, id string, values models.FormState) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodPut, sessionPath(id, "values"), models.SetValuesRequest{Values: values})
}

// ClearValue removes one form value
func (c *Client) ClearValue(ctx context.Context, id, key string) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodDelete, sessionPath(id, "values", url.PathEscape(key)), nil)
}

// SelectStep toggles the step at index
func (c *Client) SelectStep(ctx context.Context, id string, index int) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "select"), models.SelectStepRequest{Index: index})
}

// NextStep advances to the following step when the active one is complete
func (c *Client) NextStep(ctx context.Context, id string) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "next"), nil)
}

// ResetSession clears the form
func (c *Client) ResetSession(ctx context.Context, id string) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "reset"), nil)
}

// SwitchSchema moves the session to another product schema
func (c *Client) SwitchSchema(ctx context.Context, id, schemaID string) (*session.State, error) {
	return c.sessionCall(ctx, http.MethodPost, sessionPath(id, "schema"), models.SwitchSchemaRequest{SchemaID: schemaID})
}

// ApplySession saves the session snapshot as a configuration
func (c *Client) ApplySession(ctx context.Context, id string) (*models.ApplyResult, error) {
	var out models.ApplyResult
	if err := c.call(ctx, http.MethodPost, sessionPath(id, "apply"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession discards a session
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

// Configurations

// CreateConfiguration stores a configuration directly
func (c *Client) CreateConfiguration(ctx context.Context, req models.CreateConfigurationRequest) (*models.Configuration, error) {
	var out models.Configuration
	if err := c.call(ctx, http.MethodPost, "/api/v1/configurations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConfiguration retrieves a configuration by ID
func (c *Client) GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error) {
	var out models.Configuration
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/v1/configurations/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConfigurations returns configurations newest first
func (c *Client) ListConfigurations(ctx context.Context, skip, limit int) ([]*models.Configuration, error) {
	var out []*models.Configuration
	if err := c.call(ctx, http.MethodGet, "/api/v1/configurations"+pageQuery(skip, limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateConfiguration patches the set fields of a configuration
func (c *Client) UpdateConfiguration(ctx context.Context, id int64, req models.UpdateConfigurationRequest) (*models.Configuration, error) {
	var out models.Configuration
	if err := c.call(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/configurations/%d", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConfiguration removes a configuration and its exports
func (c *Client) DeleteConfiguration(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/configurations/%d", id), nil, nil)
}

// Exports

// CreateExport requests a CAD export of a configuration
func (c *Client) CreateExport(ctx context.Context, configurationID int64, format models.ExportFormat) (*models.Export, error) {
	var out models.Export
	req := models.CreateExportRequest{ConfigurationID: configurationID, Format: string(format)}
	if err := c.call(ctx, http.MethodPost, "/api/v1/exports", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExport retrieves an export by ID
func (c *Client) GetExport(ctx context.Context, id int64) (*models.Export, error) {
	var out models.Export
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/v1/exports/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExports returns the exports of a configuration
func (c *Client) ListExports(ctx context.Context, configurationID int64, skip, limit int) ([]*models.Export, error) {
	var out []*models.Export
	path := fmt.Sprintf("/api/v1/exports/configuration/%d", configurationID) + pageQuery(skip, limit)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateExport reports export progress; used by CAD workers
func (c *Client) UpdateExport(ctx context.Context, id int64, req models.UpdateExportRequest) (*models.Export, error) {
	var out models.Export
	if err := c.call(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/exports/%d", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(skip, limit int) string {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// call sends in as JSON and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(resp) == 0 {
		return nil
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// parseError understands both the response envelope and auth errors
func parseError(status int, body []byte) error {
	var parsed struct {
		Error json.RawMessage `json:"error"`
		// auth errors carry a top-level message
		Message string `json:"message"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &parsed) != nil || len(parsed.Error) == 0 {
		return apiErr
	}

	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(parsed.Error, &envelope) == nil {
		apiErr.Code, apiErr.Message = envelope.Code, envelope.Message
		return apiErr
	}

	var code string
	if json.Unmarshal(parsed.Error, &code) == nil {
		apiErr.Code, apiErr.Message = code, parsed.Message
	}
	return apiErr
}
