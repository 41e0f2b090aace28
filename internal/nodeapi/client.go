// Package nodeapi is the REST client for the backend's node endpoints.
package nodeapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
)

// Node describes a monitored machine. The detail endpoint reports memory in
// bytes as "memory"; the list endpoint reports it in GB as "total_memory".
type Node struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	IP              string  `json:"ip"`
	OS              string  `json:"os,omitempty"`
	Platform        string  `json:"platform,omitempty"`
	PlatformVersion string  `json:"platform_version,omitempty"`
	KernelVersion   string  `json:"kernel_version,omitempty"`
	CPUs            int     `json:"cpus"`
	Memory          float64 `json:"memory,omitempty"`
	TotalMemory     float64 `json:"total_memory,omitempty"`
}

const bytesPerGB = 1024 * 1024 * 1024

// MemoryGB returns total memory in GB from whichever field is set.
func (n Node) MemoryGB() float64 {
	if n.TotalMemory > 0 {
		return n.TotalMemory
	}
	return n.Memory / bytesPerGB
}

// DisplayName returns the name, or the IP for unnamed nodes.
func (n Node) DisplayName() string {
	if strings.TrimSpace(n.Name) != "" {
		return n.Name
	}
	if n.IP != "" {
		return n.IP
	}
	return "node " + strconv.Itoa(n.ID)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
	CacheTTL      time.Duration
	Logger        logger.Logger

	// DialContext, when set, carries HTTP traffic (e.g. through an SSH tunnel).
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultConfig returns the client defaults for baseURL, which already
// includes the API prefix (http://localhost:8000/api/v1).
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		Timeout:       10 * time.Second,
		RetryCount:    2,
		RetryWaitTime: 500 * time.Millisecond,
		CacheTTL:      time.Minute,
	}
}

// Client talks to the node endpoints. Descriptors fetched by id are cached.
type Client struct {
	client *resty.Client
	cache  *cache.Cache
	log    logger.Logger
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewClient creates a client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig("http://localhost:8000/api/v1")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewEnvLogger("[nodeapi]")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetHeader("Accept", "application/json")

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	if cfg.DialContext != nil {
		client.SetTransport(&http.Transport{
			DialContext:         cfg.DialContext,
			MaxIdleConns:        4,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Client{
		client: client,
		cache:  cache.New(ttl, ttl*2),
		log:    log,
	}
}

// GetNode fetches one node descriptor, from cache when fresh.
func (c *Client) GetNode(ctx context.Context, id int) (*Node, error) {
	key := strconv.Itoa(id)
	if cached, found := c.cache.Get(key); found {
		n := cached.(Node)
		return &n, nil
	}

	var result envelope[Node]
	var failure errorBody
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", key).
		SetResult(&result).
		SetError(&failure).
		Get("/nodes/{id}")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrAPI,
			fmt.Sprintf("Couldn't fetch node %d", id),
			"Check server.url and that the backend is reachable")
	}
	if resp.IsError() {
		return nil, apiError(resp, failure.Error, fmt.Sprintf("node %d", id))
	}

	node := result.Data
	if node.ID == 0 {
		node.ID = id
	}
	c.cache.Set(key, node, cache.DefaultExpiration)
	c.log.Debug("fetched node %d (%s)", id, node.DisplayName())
	return &node, nil
}

// ListOptions filters ListNodes.
type ListOptions struct {
	Search string
	Page   int
	Limit  int
}

// ListNodes returns one page of nodes. Listed nodes also warm the cache.
func (c *Client) ListNodes(ctx context.Context, opts ListOptions) ([]Node, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	var result envelope[[]Node]
	var failure errorBody
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(opts.Page)).
		SetQueryParam("limit", strconv.Itoa(opts.Limit)).
		SetResult(&result).
		SetError(&failure)
	if opts.Search != "" {
		req.SetQueryParam("search", opts.Search)
	}

	resp, err := req.Get("/nodes")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrAPI,
			"Couldn't list nodes",
			"Check server.url and that the backend is reachable")
	}
	if resp.IsError() {
		return nil, apiError(resp, failure.Error, "nodes")
	}
	for _, n := range result.Data {
		c.cache.Set(strconv.Itoa(n.ID), n, cache.DefaultExpiration)
	}
	return result.Data, nil
}

// Rename changes a node's display name and drops its cached descriptor.
func (c *Client) Rename(ctx context.Context, id int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New(errors.ErrAPI, "Node name can't be empty", "")
	}

	var failure errorBody
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"id": id, "name": name}).
		SetError(&failure).
		Put("/nodes/change-name")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAPI,
			fmt.Sprintf("Couldn't rename node %d", id), "")
	}
	if resp.IsError() {
		return apiError(resp, failure.Error, fmt.Sprintf("node %d", id))
	}
	c.cache.Delete(strconv.Itoa(id))
	return nil
}

// Invalidate drops every cached descriptor.
func (c *Client) Invalidate() {
	c.cache.Flush()
}

func apiError(resp *resty.Response, serverMsg, what string) error {
	msg := fmt.Sprintf("Backend returned %s for %s", resp.Status(), what)
	if serverMsg != "" {
		msg += ": " + serverMsg
	}
	suggestion := ""
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		suggestion = "Set server.token (or PILOT_SERVER_TOKEN) to a valid token"
	case http.StatusNotFound:
		suggestion = "List nodes with: pilot nodes"
	}
	return errors.New(errors.ErrAPI, msg, suggestion)
}
