package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/clearstack/internal/api/middleware"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLEARSTACK_DATABASE_DRIVER", "sqlite")
	t.Setenv("CLEARSTACK_DATABASE_DSN", filepath.Join(t.TempDir(), "clearstack.db"))
	t.Setenv("CLEARSTACK_DATABASE_MAX_OPEN_CONNS", "1")
	t.Setenv("CLEARSTACK_LOG_LEVEL", "error")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("CLEARSTACK_JWT_SECRET", "cli-secret")
	out, err := run(t, "token", "--company", "c1", "--role", middleware.RoleSuperAdmin)
	require.NoError(t, err)

	claims := &middleware.Claims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.CompanyID)
	assert.Equal(t, middleware.RoleSuperAdmin, claims.Role)
	require.NotNil(t, claims.ExpiresAt)
}

func TestTokenCommandRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("CLEARSTACK_JWT_SECRET", "cli-secret")
	for _, ttl := range []string{"0", "-1m"} {
		_, err := run(t, "token", "--company", "c1", "--ttl", ttl)
		assert.Error(t, err, ttl)
	}
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("CLEARSTACK_JWT_SECRET", "")
	_, err := run(t, "token", "--company", "c1")
	assert.Error(t, err)
}

func TestFlagsInitAndDispatch(t *testing.T) {
	sqliteEnv(t)

	out, err := run(t, "flags", "init")
	require.NoError(t, err)
	var created map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, 5, created["created"])

	out, err = run(t, "flags", "init")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, 0, created["created"])

	out, err = run(t, "dispatch", "--limit", "10")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sent":0,"failed":0,"errors":[]}`, out)

	out, err = run(t, "cleanup")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":0}`, out)
}

func TestHookCommand(t *testing.T) {
	sqliteEnv(t)
	_, err := run(t, "flags", "init")
	require.NoError(t, err)

	out, err := run(t, "hook", "review-created", "r-missing")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"review-created","id":"r-missing","queued":true}`, out)

	_, err = run(t, "hook", "invoice-paid", "x")
	assert.ErrorContains(t, err, "unknown hook kind")
	_, err = run(t, "hook", "review-created")
	assert.Error(t, err)
}

func TestServeRequiresSecret(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("CLEARSTACK_JWT_SECRET", "")
	_, err := run(t, "serve")
	assert.ErrorContains(t, err, "jwt.secret")
}
