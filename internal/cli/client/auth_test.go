package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthLogin_StoresCredentials(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	err := runAuthLogin(&out, strings.NewReader(""), "admin-secret-token", "http://localhost:8080")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Credentials saved")

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "admin-secret-token", config.AdminToken)
	assert.Equal(t, "http://localhost:8080", config.APIURL)
}

func TestAuthLogin_PromptsForToken(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	err := runAuthLogin(&out, strings.NewReader("  typed-token \n"), "", "http://localhost:8080")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Enter admin token")

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "typed-token", config.AdminToken)
}

func TestAuthLogin_OverwritesExisting(t *testing.T) {
	useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://old.example.com", AdminToken: "old"}))

	var out bytes.Buffer
	require.NoError(t, runAuthLogin(&out, strings.NewReader(""), "new", "http://new.example.com"))

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "new", config.AdminToken)
	assert.Equal(t, "http://new.example.com", config.APIURL)
}

func TestAuthLogin_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		token   string
		apiURL  string
		wantErr string
	}{
		{name: "empty token", input: "\n", apiURL: "http://localhost:8080", wantErr: "admin token cannot be empty"},
		{name: "invalid url", token: "tok", apiURL: "not a url", wantErr: "invalid API URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := useTempConfig(t)

			var out bytes.Buffer
			err := runAuthLogin(&out, strings.NewReader(tt.input), tt.token, tt.apiURL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoFileExists(t, configPath)
		})
	}
}

func TestAuthLogout(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{AdminToken: "tok"}))

	var out bytes.Buffer
	require.NoError(t, runAuthLogout(&out))
	assert.Contains(t, out.String(), "Credentials removed")
	assert.NoFileExists(t, configPath)
}

func TestAuthStatus_NoToken(t *testing.T) {
	useTempConfig(t)
	t.Setenv(envAdminToken, "")

	var out bytes.Buffer
	require.NoError(t, runAuthStatus(&out, "", "", false))
	assert.Contains(t, out.String(), "No admin token configured")
}

func TestAuthStatus_MasksToken(t *testing.T) {
	useTempConfig(t)
	t.Setenv(envAdminToken, "")
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://saved.example.com", AdminToken: "abcd1234efgh5678"}))

	var out bytes.Buffer
	require.NoError(t, runAuthStatus(&out, "", "", false))
	assert.Contains(t, out.String(), "abcd...5678")
	assert.Contains(t, out.String(), "global_config")
	assert.NotContains(t, out.String(), "abcd1234efgh5678")
}

func TestAuthStatus_JSON(t *testing.T) {
	useTempConfig(t)
	t.Setenv(envAPIURL, "")

	var out bytes.Buffer
	require.NoError(t, runAuthStatus(&out, "short", "http://flag.example.com", true))

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, true, status["admin"])
	assert.Equal(t, "flag", status["source"])
	assert.Equal(t, "***", status["admin_token"])
	assert.Equal(t, "http://flag.example.com", status["api_url"])
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", maskToken("1234567"))
	assert.Equal(t, "1234...5678", maskToken("12345678"))
}
