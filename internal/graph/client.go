package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kebairia/neoback/internal/logger"
)

var (
	// ErrUnreachable indicates the graph HTTP endpoint could not be reached.
	ErrUnreachable = errors.New("graph endpoint unreachable")
	// ErrQuery indicates the endpoint answered but rejected the statement.
	ErrQuery = errors.New("cypher query failed")
)

// Stats captures graph size at a point in time. The JSON field names match
// the manifest's graph_stats block.
type Stats struct {
	NodeCount         int64 `json:"node_count"`
	RelationshipCount int64 `json:"relationship_count"`
}

// Client issues Cypher statements against the graph database's HTTP
// transactional endpoint. It is safe for concurrent use.
type Client struct {
	baseURL  string
	database string
	username string
	password string
	timeout  time.Duration
	http     *http.Client
	log      logger.Logger
}

// ClientOption overrides a default client setting.
type ClientOption func(*Client)

// WithAddress sets the base URI of the HTTP endpoint.
func WithAddress(uri string) ClientOption {
	return func(c *Client) {
		if uri != "" {
			c.baseURL = strings.TrimRight(uri, "/")
		}
	}
}

// WithDatabase sets the database statements run against.
func WithDatabase(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.database = name
		}
	}
}

// WithCredentials sets basic-auth credentials.
func WithCredentials(user, pass string) ClientOption {
	return func(c *Client) {
		if user != "" {
			c.username = user
			c.password = pass
		}
	}
}

// WithTimeout bounds every request issued by the client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(log logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient returns a Client configured by opts.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  "http://localhost:7474",
		database: "neo4j",
		timeout:  15 * time.Second,
		http:     &http.Client{},
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Database returns the database name this client targets.
func (c *Client) Database() string { return c.database }

// ForDatabase returns a copy of the client bound to another database on the
// same endpoint. Used for the system database and restore targets.
func (c *Client) ForDatabase(name string) *Client {
	clone := *c
	clone.database = name
	return &clone
}

// Wire format of the transactional endpoint.
type txStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []json.RawMessage `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Run executes a single auto-commit Cypher statement and returns the result
// rows as raw JSON values.
func (c *Client) Run(ctx context.Context, cypher string, params map[string]any) ([][]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: cypher, Parameters: params}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode statement: %w", err)
	}

	url := fmt.Sprintf("%s/db/%s/tx/commit", c.baseURL, c.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrQuery, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed txResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrQuery, err)
	}
	if len(parsed.Errors) > 0 {
		e := parsed.Errors[0]
		return nil, fmt.Errorf("%w: %s: %s", ErrQuery, e.Code, e.Message)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}

	rows := make([][]json.RawMessage, 0, len(parsed.Results[0].Data))
	for _, d := range parsed.Results[0].Data {
		rows = append(rows, d.Row)
	}
	return rows, nil
}

// Exec runs a statement and discards its rows.
func (c *Client) Exec(ctx context.Context, cypher string) error {
	_, err := c.Run(ctx, cypher, nil)
	return err
}

// Ping issues a trivial round-trip query.
func (c *Client) Ping(ctx context.Context) error {
	return c.Exec(ctx, "RETURN 1")
}

// QueryInt runs a statement expected to return a single numeric value.
func (c *Client) QueryInt(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	rows, err := c.Run(ctx, cypher, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("%w: %q returned no rows", ErrQuery, cypher)
	}

	var n int64
	if err := json.Unmarshal(rows[0][0], &n); err != nil {
		return 0, fmt.Errorf("%w: %q returned non-numeric value %s", ErrQuery, cypher, rows[0][0])
	}
	return n, nil
}

// QueryString runs a statement expected to return a single string value.
func (c *Client) QueryString(ctx context.Context, cypher string, params map[string]any) (string, error) {
	rows, err := c.Run(ctx, cypher, params)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", fmt.Errorf("%w: %q returned no rows", ErrQuery, cypher)
	}

	var s string
	if err := json.Unmarshal(rows[0][0], &s); err != nil {
		return "", fmt.Errorf("%w: %q returned non-string value %s", ErrQuery, cypher, rows[0][0])
	}
	return s, nil
}

// Stats counts nodes and relationships in the target database.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	nodes, err := c.QueryInt(ctx, "MATCH (n) RETURN count(n)", nil)
	if err != nil {
		return Stats{}, fmt.Errorf("count nodes: %w", err)
	}

	rels, err := c.QueryInt(ctx, "MATCH ()-[r]->() RETURN count(r)", nil)
	if err != nil {
		return Stats{}, fmt.Errorf("count relationships: %w", err)
	}

	return Stats{NodeCount: nodes, RelationshipCount: rels}, nil
}

// Version reports the server's kernel version, e.g. "5.19.0".
func (c *Client) Version(ctx context.Context) (string, error) {
	const q = "CALL dbms.components() YIELD name, versions WHERE name = 'Neo4j Kernel' RETURN versions[0]"
	return c.QueryString(ctx, q, nil)
}
