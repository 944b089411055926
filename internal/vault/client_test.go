package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault answers the three endpoints the client touches: secret-id
// generation, approle login, and KV reads.
func fakeVault(t *testing.T) (*httptest.Server, map[string]string) {
	t.Helper()

	seenTokens := make(map[string]string)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTokens[r.URL.Path] = r.Header.Get("X-Vault-Token")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/auth/approle/role/backup/secret-id":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"secret_id": "sid-123"},
			})
		case "/v1/auth/approle/login":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "role-abc", body["role_id"])
			assert.Equal(t, "sid-123", body["secret_id"])
			json.NewEncoder(w).Encode(map[string]any{
				"auth": map[string]any{"client_token": "tok-login"},
			})
		case "/v1/secret/data/neo4j":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"data":     map[string]any{"username": "graph", "password": "s3cret"},
					"metadata": map[string]any{"version": 1},
				},
			})
		case "/v1/kv/neo4j":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"username": "graph", "password": "s3cret"},
			})
		case "/v1/secret/data/broken":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"data": map[string]any{"username": "graph"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"errors": []string{}})
		}
	}))
	return srv, seenTokens
}

func TestClient_AppRoleLoginThenRead(t *testing.T) {
	srv, seen := fakeVault(t)
	defer srv.Close()

	client, err := NewClient(context.Background(),
		WithAddress(srv.URL),
		WithAppRole("role-abc", "backup"),
	)
	require.NoError(t, err)

	creds, err := client.GetStaticCredentials(context.Background(), "secret/data/neo4j")
	require.NoError(t, err)
	assert.Equal(t, "graph", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)

	// The KV read must carry the token issued at login, not the bootstrap one.
	assert.Equal(t, "tok-login", seen["/v1/secret/data/neo4j"])
}

func TestClient_StaticTokenKVv1Read(t *testing.T) {
	srv, seen := fakeVault(t)
	defer srv.Close()

	client, err := NewClient(context.Background(),
		WithAddress(srv.URL),
		WithToken("tok-static"),
	)
	require.NoError(t, err)

	creds, err := client.GetStaticCredentials(context.Background(), "kv/neo4j")
	require.NoError(t, err)
	assert.Equal(t, "graph", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)
	assert.Equal(t, "tok-static", seen["/v1/kv/neo4j"])
}

func TestClient_SecretNotFound(t *testing.T) {
	srv, _ := fakeVault(t)
	defer srv.Close()

	client, err := NewClient(context.Background(),
		WithAddress(srv.URL),
		WithToken("tok-static"),
	)
	require.NoError(t, err)

	_, err = client.GetStaticCredentials(context.Background(), "secret/data/missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestClient_IncompleteCredentials(t *testing.T) {
	srv, _ := fakeVault(t)
	defer srv.Close()

	client, err := NewClient(context.Background(),
		WithAddress(srv.URL),
		WithToken("tok-static"),
	)
	require.NoError(t, err)

	_, err = client.GetStaticCredentials(context.Background(), "secret/data/broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete credentials")
}
