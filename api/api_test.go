// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openassist/openassist-mcp/mcp"
	"github.com/openassist/openassist-mcp/metrics"
)

func setupAPI(t *testing.T, cfg mcp.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg.Enabled = true
	metricsService := metrics.NewNoopMetrics()
	manager := mcp.NewClientManager(cfg, log, metricsService)
	t.Cleanup(manager.Close)

	return New(manager, log, metricsService).Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeServer(t *testing.T, recorder *httptest.ResponseRecorder) mcp.ServerConfig {
	t.Helper()
	var server mcp.ServerConfig
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &server))
	return server
}

func TestServerCRUD(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"name":    "github",
		"command": "github-mcp",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	created := decodeServer(t, recorder)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, mcp.StatusInactive, created.Status)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/mcp/servers", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var servers []mcp.ServerConfig
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &servers))
	require.Len(t, servers, 1)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/mcp/servers/"+created.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	name := "github tools"
	recorder = doJSON(t, router, http.MethodPatch, "/api/v1/mcp/servers/"+created.ID, map[string]any{"name": name})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, name, decodeServer(t, recorder).Name)

	recorder = doJSON(t, router, http.MethodDelete, "/api/v1/mcp/servers/"+created.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/mcp/servers/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAddServerDuplicateID(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	body := map[string]any{"id": "dup", "command": "a"}
	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", body)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", body)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStartServerFailureMapping(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"id":      "broken",
		"command": "/nonexistent/binary",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	// Spawn failure surfaces as a gateway error and the server lands in the
	// error state.
	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/broken/start", nil)
	require.Equal(t, http.StatusBadGateway, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/mcp/servers/broken", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	server := decodeServer(t, recorder)
	assert.Equal(t, mcp.StatusError, server.Status)
	assert.NotEmpty(t, server.LastError)

	// Deleting while errored is a conflict; stop resets to inactive first.
	recorder = doJSON(t, router, http.MethodDelete, "/api/v1/mcp/servers/broken", nil)
	require.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/broken/stop", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodDelete, "/api/v1/mcp/servers/broken", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestStartServerInvalidEnvMapping(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"id":      "bad-env",
		"command": "/nonexistent/binary",
		"env":     map[string]string{"TOKEN": ""},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/bad-env/start", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStartServerHTTPTransportMapping(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"id":        "remote",
		"transport": "remote-http",
		"baseURL":   "https://tools.example.com/mcp",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/remote/start", nil)
	require.Equal(t, http.StatusNotImplemented, recorder.Code)
}

func TestExecuteToolOnInactiveServer(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"id":      "idle",
		"command": "idle",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/idle/tools/anything", map[string]any{"arguments": map[string]any{}})
	require.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/ghost/tools/anything", map[string]any{"arguments": map[string]any{}})
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestStartAndStopEchoServer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires echo")
	}

	router := setupAPI(t, mcp.Config{HandshakeTimeoutSeconds: 5})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"id":      "echo",
		"command": "echo",
		"args":    []string{"hello"},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/echo/start", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	started := decodeServer(t, recorder)
	assert.Equal(t, mcp.StatusActive, started.Status)
	assert.Empty(t, started.Tools)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/echo/stop", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, mcp.StatusInactive, decodeServer(t, recorder).Status)
}

func TestToolListingEndpoints(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodGet, "/api/v1/mcp/tools", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, "[]", recorder.Body.String())

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/mcp/tools/search?q=git", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, "[]", recorder.Body.String())
}

func TestGetResourceRequiresURI(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"id":      "idle",
		"command": "idle",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/mcp/servers/idle/resource", map[string]any{})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupAPI(t, mcp.Config{})

	recorder := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}
