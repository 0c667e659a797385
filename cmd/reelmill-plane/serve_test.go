package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelmill/internal/controlplane"
	"reelmill/internal/logging"
)

func TestNewPlaneServesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	store, handler, err := newPlane(context.Background(), planeOptions{
		DSN:         filepath.Join(dir, "plane.db"),
		ObjectDir:   filepath.Join(dir, "objects"),
		Password:    "pw",
		AdminSecret: "secret",
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := controlplane.New(controlplane.Config{BaseURL: server.URL, Password: "pw", DaemonID: "d1", RetryAttempts: 1})
	require.NoError(t, client.Health(context.Background()))

	resp, err := http.Get(server.URL + "/projects/eligible")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNewPlaneRequiresSecrets(t *testing.T) {
	_, _, err := newPlane(context.Background(), planeOptions{AdminSecret: "secret"}, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")

	_, _, err = newPlane(context.Background(), planeOptions{Password: "pw"}, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin secret")
}

func TestDialectName(t *testing.T) {
	assert.Equal(t, "postgres", dialectName("postgres://u@h/db"))
	assert.Equal(t, "sqlite", dialectName("/var/lib/reelmill/plane.db"))
}
