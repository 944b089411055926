package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeGraph answers the transactional endpoint with canned rows keyed by a
// substring of the statement.
func fakeGraph(t *testing.T, rows map[string]any) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req txRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Statements, 1)

		stmt := req.Statements[0].Statement
		for key, val := range rows {
			if strings.Contains(stmt, key) {
				fmt.Fprintf(w, `{"results":[{"columns":["v"],"data":[{"row":[%s]}]}],"errors":[]}`, mustJSON(t, val))
				return
			}
		}
		fmt.Fprint(w, `{"results":[{"columns":[],"data":[]}],"errors":[]}`)
	}))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestClient_PingAndAuth(t *testing.T) {
	var gotPath, gotUser string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		fmt.Fprint(w, `{"results":[{"columns":["1"],"data":[{"row":[1]}]}],"errors":[]}`)
	}))
	defer srv.Close()

	c := NewClient(
		WithAddress(srv.URL),
		WithDatabase("memory"),
		WithCredentials("backup", "s3cret"),
	)

	require.NoError(t, c.Ping(context.Background()))
	require.Equal(t, "/db/memory/tx/commit", gotPath)
	require.Equal(t, "backup", gotUser)
}

func TestClient_Stats(t *testing.T) {
	srv := fakeGraph(t, map[string]any{
		"MATCH (n) RETURN count(n)":        1500,
		"MATCH ()-[r]->() RETURN count(r)": 3200,
	})
	defer srv.Close()

	c := NewClient(WithAddress(srv.URL))

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1500), stats.NodeCount)
	require.Equal(t, int64(3200), stats.RelationshipCount)
}

func TestClient_Version(t *testing.T) {
	srv := fakeGraph(t, map[string]any{"dbms.components": "5.19.0"})
	defer srv.Close()

	c := NewClient(WithAddress(srv.URL))

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "5.19.0", v)
}

func TestClient_QueryErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[],"errors":[{"code":"Neo.ClientError.Statement.SyntaxError","message":"bad query"}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithAddress(srv.URL))

	err := c.Ping(context.Background())
	require.ErrorIs(t, err, ErrQuery)
	require.Contains(t, err.Error(), "SyntaxError")
}

func TestClient_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(WithAddress(srv.URL))

	err := c.Ping(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_ForDatabase(t *testing.T) {
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		fmt.Fprint(w, `{"results":[{"columns":["1"],"data":[{"row":[1]}]}],"errors":[]}`)
	}))
	defer srv.Close()

	c := NewClient(WithAddress(srv.URL), WithDatabase("neo4j"))
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.ForDatabase("system").Ping(context.Background()))

	require.Equal(t, []string{"/db/neo4j/tx/commit", "/db/system/tx/commit"}, paths)
}
