// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAuth(t *testing.T) {
	token := "test-token-123"
	auth := NewTokenAuth(token)

	assert.Equal(t, "token", auth.Type())

	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
	require.NoError(t, err)

	require.NoError(t, auth.Authenticate(ctx, req))
	assert.Equal(t, token, req.Header.Get("X-SLURM-USER-TOKEN"))
}

func TestBasicAuth(t *testing.T) {
	username := "testuser"
	password := "testpass"
	auth := NewBasicAuth(username, password)

	assert.Equal(t, "basic", auth.Type())

	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
	require.NoError(t, err)

	require.NoError(t, auth.Authenticate(ctx, req))

	gotUser, gotPass, ok := req.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, username, gotUser)
	assert.Equal(t, password, gotPass)
}

func TestNoAuth(t *testing.T) {
	auth := NewNoAuth()
	assert.Equal(t, "none", auth.Type())

	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
	require.NoError(t, err)

	require.NoError(t, auth.Authenticate(ctx, req))
	assert.Empty(t, req.Header.Get("X-SLURM-USER-TOKEN"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAuthProviderInterface(t *testing.T) {
	var _ Provider = &TokenAuth{}
	var _ Provider = &BasicAuth{}
	var _ Provider = &NoAuth{}

	providers := []Provider{
		NewTokenAuth("test-token"),
		NewBasicAuth("user", "pass"),
		NewNoAuth(),
	}

	ctx := context.Background()
	for _, provider := range providers {
		assert.NotEmpty(t, provider.Type())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
		require.NoError(t, err)
		assert.NoError(t, provider.Authenticate(ctx, req))
	}
}

func TestBasicAuthWithEmptyCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "password"},
		{"empty password", "username", ""},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewBasicAuth(tt.username, tt.password)

			ctx := context.Background()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
			require.NoError(t, err)

			require.NoError(t, auth.Authenticate(ctx, req))

			gotUser, gotPass, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, tt.username, gotUser)
			assert.Equal(t, tt.password, gotPass)
		})
	}
}

func TestTokenAuthOverwritesOnRepeatedCalls(t *testing.T) {
	auth := NewTokenAuth("test-token")
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
	require.NoError(t, err)

	require.NoError(t, auth.Authenticate(ctx, req))
	require.NoError(t, auth.Authenticate(ctx, req))
	assert.Equal(t, "test-token", req.Header.Get("X-SLURM-USER-TOKEN"))
}
