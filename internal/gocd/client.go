package gocd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	adminConfigPath = "/go/admin/restful/configuration/file/GET/xml"
	adminUpdatePath = "/go/admin/restful/configuration/file/POST/xml"

	configVersionHeader = "X-CRUISE-CONFIG-MD5"
)

// Client talks to the GoCD server admin configuration API.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBasicAuth sets credentials for the admin API.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// NewClient creates a client for the GoCD server at baseURL, e.g.
// https://gocd.example.com.
func NewClient(baseURL string, logger *zerolog.Logger, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ServerConfig is the full cruise configuration as fetched from the server,
// along with the version token required to post changes back.
type ServerConfig struct {
	Root    *Element
	Version string
}

// FetchConfig retrieves the current cruise configuration and its version.
func (c *Client) FetchConfig(ctx context.Context) (*ServerConfig, error) {
	endpoint := c.baseURL + adminConfigPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build config request: %w", err)
	}
	c.authorize(req)

	c.logger.Debug().Str("url", endpoint).Msg("fetching server configuration")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch configuration from %v: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %v returned %v: %w", endpoint, resp.Status, ErrUnexpectedStatus)
	}

	version := resp.Header.Get(configVersionHeader)
	if version == "" {
		return nil, ErrMissingVersion
	}

	root, err := ParseXML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server configuration: %w", err)
	}
	if root.Tag != "cruise" {
		return nil, ErrMissingCruise
	}

	c.logger.Debug().
		Str("version", version).
		Msg("fetched server configuration")

	return &ServerConfig{Root: root, Version: version}, nil
}

// PostConfig uploads a full cruise configuration. The version must match the
// one returned by FetchConfig; a mismatch means the configuration changed on
// the server in the meantime.
func (c *Client) PostConfig(ctx context.Context, config *ServerConfig) error {
	endpoint := c.baseURL + adminUpdatePath

	form := url.Values{}
	form.Set("xmlFile", config.Root.XMLString())
	form.Set("md5", config.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	c.logger.Debug().Str("url", endpoint).Str("version", config.Version).Msg("posting configuration")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post configuration to %v: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Info().Msg("server configuration updated")
		return nil
	case http.StatusConflict:
		return ErrConfigConflict
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %v returned %v, %v: %w", endpoint, resp.Status, strings.TrimSpace(string(body)), ErrUnexpectedStatus)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
