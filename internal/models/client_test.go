package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApiClientHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		client   *ApiClient
		required string
		want     bool
	}{
		{"nil client", nil, "exports:read", false},
		{"inactive", &ApiClient{Permissions: []string{"*"}}, "exports:read", false},
		{"exact", &ApiClient{IsActive: true, Permissions: []string{"exports:read"}}, "exports:read", true},
		{"wildcard scope", &ApiClient{IsActive: true, Permissions: []string{"exports:*"}}, "exports:write", true},
		{"other scope", &ApiClient{IsActive: true, Permissions: []string{"exports:*"}}, "configurations:read", false},
		{"global", &ApiClient{IsActive: true, Permissions: []string{"*"}}, "sessions:write", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.client.HasPermission(tt.required))
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", MaskKey("short"))
	assert.Equal(t, "sk_12345...", MaskKey("sk_1234567890"))
}

func TestPageClamp(t *testing.T) {
	assert.Equal(t, Page{Skip: 0, Limit: 20}, Page{Skip: -4}.Clamp(20, 100))
	assert.Equal(t, Page{Skip: 5, Limit: 100}, Page{Skip: 5, Limit: 500}.Clamp(20, 100))
	assert.Equal(t, Page{Skip: 0, Limit: 7}, Page{Limit: 7}.Clamp(20, 100))
}

func TestParseExportFormat(t *testing.T) {
	f, ok := ParseExportFormat(" step ")
	assert.True(t, ok)
	assert.Equal(t, FormatSTEP, f)

	_, ok = ParseExportFormat("OBJ")
	assert.False(t, ok)
}
