package client

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// ErrPoolExhausted is returned when a pool has no space left at the
// requested prefix length. Callers map it to their own diagnostics; the
// client never falls through to a different pool.
var ErrPoolExhausted = errors.New("pool has no available space")

// NetBoxClient handles all inventory API operations
type NetBoxClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      *CacheManager
	logger     *utils.Logger
	dryRun     bool
}

// NewClient creates a new inventory API client
func NewClient(baseURL, token string, dryRun bool) (*NetBoxClient, error) {
	logger := utils.NewLogger(dryRun)

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	client := &NetBoxClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
		dryRun:     dryRun,
	}

	client.cache = NewCacheManager(client)

	return client, nil
}

// Object represents a generic inventory object. It aliases the raw map so
// values flow into helpers like GetIDFromObject without conversion.
type Object = map[string]interface{}

// Result reports the outcome of an idempotent create: either the record
// that already existed or the one that was just created. Callers branch on
// Created instead of catching a duplicate error.
type Result struct {
	Object  Object
	Created bool
}

// Request makes an HTTP request to the inventory API
func (c *NetBoxClient) Request(method, path string, body interface{}) (Object, error) {
	respBody, err := c.do(method, path, body)
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		return nil, nil
	}

	// Allocation endpoints answer with a single-element list
	if respBody[0] == '[' {
		var list []Object
		if err := json.Unmarshal(respBody, &list); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}

	var result Object
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result, nil
}

// do issues the request and returns the raw response body
func (c *NetBoxClient) do(method, path string, body interface{}) ([]byte, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.dryRun && (method == "POST" || method == "PATCH" || method == "PUT" || method == "DELETE") {
		c.logger.DryRun(method, path)
		return []byte(`{"id": 0}`), nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if isExhaustedResponse(resp.StatusCode, respBody) {
			return nil, fmt.Errorf("%w: %s", ErrPoolExhausted, strings.TrimSpace(string(respBody)))
		}
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// List makes a GET request and returns a list of objects
func (c *NetBoxClient) List(path string, filters map[string]interface{}) ([]Object, error) {
	url := c.baseURL + path

	if len(filters) > 0 {
		url += "?"
		for k, v := range filters {
			url += fmt.Sprintf("%s=%v&", k, v)
		}
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results []Object `json:"results"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		// Try unmarshaling as direct array
		var directResults []Object
		if err2 := json.Unmarshal(respBody, &directResults); err2 == nil {
			return directResults, nil
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result.Results, nil
}

// Get retrieves a single object by ID
func (c *NetBoxClient) Get(app, endpoint string, id int) (Object, error) {
	path := fmt.Sprintf("/api/%s/%s/%d/", app, endpoint, id)
	return c.Request("GET", path, nil)
}

// Filter retrieves objects matching the given filters
func (c *NetBoxClient) Filter(app, endpoint string, filters map[string]interface{}) ([]Object, error) {
	path := fmt.Sprintf("/api/%s/%s/", app, endpoint)
	return c.List(path, filters)
}

// Create creates a new object
func (c *NetBoxClient) Create(app, endpoint string, data map[string]interface{}) (Object, error) {
	path := fmt.Sprintf("/api/%s/%s/", app, endpoint)
	return c.Request("POST", path, data)
}

// CreateBulk creates several objects of one kind in a single write. Bulk is
// a throughput optimization only: callers must have established through
// GetOrCreate lookups that none of the items exist yet.
func (c *NetBoxClient) CreateBulk(app, endpoint string, items []map[string]interface{}) ([]Object, error) {
	if len(items) == 0 {
		return nil, nil
	}

	path := fmt.Sprintf("/api/%s/%s/", app, endpoint)

	if c.dryRun {
		c.logger.DryRun("POST", "%s (%d items)", path, len(items))
		return make([]Object, len(items)), nil
	}

	respBody, err := c.do("POST", path, items)
	if err != nil {
		return nil, err
	}

	var created []Object
	if err := json.Unmarshal(respBody, &created); err != nil {
		// Some backends answer a bulk write with a single object
		var single Object
		if err2 := json.Unmarshal(respBody, &single); err2 == nil {
			return []Object{single}, nil
		}
		return nil, fmt.Errorf("failed to unmarshal bulk response: %w", err)
	}

	return created, nil
}

// Update updates an existing object
func (c *NetBoxClient) Update(app, endpoint string, id int, data map[string]interface{}) error {
	path := fmt.Sprintf("/api/%s/%s/%d/", app, endpoint, id)
	_, err := c.Request("PATCH", path, data)
	return err
}

// cacheResources maps API endpoints to their slug→ID cache buckets
var cacheResources = map[string]string{
	"dcim/sites":        "sites",
	"dcim/device-roles": "roles",
	"dcim/device-types": "device_types",
	"dcim/racks":        "racks",
	"dcim/rack-groups":  "rack_groups",
}

// cacheKey extracts the identifier a lookup would be cached under
func cacheKey(lookup map[string]interface{}) (string, bool) {
	for _, field := range []string{"slug", "name", "model"} {
		if v, ok := lookup[field].(string); ok {
			return v, true
		}
	}
	return "", false
}

// GetOrCreate finds an object by lookup or creates it from payload. The
// lookup must be derived deterministically from hierarchy coordinates so a
// repeated call with identical inputs is a no-op returning the prior record.
// Cacheable resources are resolved from the warm cache without an API round
// trip.
func (c *NetBoxClient) GetOrCreate(app, endpoint string, lookup, payload map[string]interface{}) (Result, error) {
	c.logger.Debug("  → Ensuring %s with lookup: %v", endpoint, formatLookup(lookup))

	resource := cacheResources[app+"/"+endpoint]
	key, keyed := cacheKey(lookup)

	if resource != "" && keyed {
		if id, hit := c.cache.GetID(resource, key); hit {
			c.logger.Debug("  = Cached %s (ID: %d): %s", endpoint, id, formatLookup(lookup))
			obj := Object{"id": id}
			for k, v := range lookup {
				obj[k] = v
			}
			return Result{Object: obj, Created: false}, nil
		}
	}

	existing, err := c.Filter(app, endpoint, lookup)
	if err != nil {
		return Result{}, fmt.Errorf("failed to filter objects: %w", err)
	}

	if len(existing) > 0 {
		obj := existing[0]
		c.remember(resource, key, keyed, obj)
		c.logger.Debug("  = Exists %s (ID: %d): %s", endpoint, utils.GetIDFromObject(obj), formatLookup(lookup))
		return Result{Object: obj, Created: false}, nil
	}

	c.logger.Success("  ✓ Creating %s: %s", endpoint, formatLookup(lookup))
	obj, err := c.Create(app, endpoint, payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", endpoint, err)
	}

	c.remember(resource, key, keyed, obj)
	return Result{Object: obj, Created: true}, nil
}

// remember records a resolved object in the resource cache
func (c *NetBoxClient) remember(resource, key string, keyed bool, obj Object) {
	if resource == "" || !keyed {
		return
	}
	if id := utils.GetIDFromObject(obj); id > 0 {
		c.cache.Put(resource, key, id)
	}
}

// AllocatePrefix carves the next free child prefix of the given length from
// a parent prefix pool.
func (c *NetBoxClient) AllocatePrefix(parentID, length int, payload map[string]interface{}) (Object, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["prefix_length"] = length

	path := fmt.Sprintf("/api/ipam/prefixes/%d/available-prefixes/", parentID)
	if c.dryRun {
		c.logger.DryRun("POST", path)
		return Object{"id": 0, "prefix": fmt.Sprintf("0.0.0.0/%d", length)}, nil
	}
	return c.Request("POST", path, payload)
}

// AllocateAddress carves the next free host address from a prefix pool.
func (c *NetBoxClient) AllocateAddress(prefixID int, payload map[string]interface{}) (Object, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}

	path := fmt.Sprintf("/api/ipam/prefixes/%d/available-ips/", prefixID)
	if c.dryRun {
		c.logger.DryRun("POST", path)
		return Object{"id": 0, "address": "0.0.0.0/32"}, nil
	}
	return c.Request("POST", path, payload)
}

// isExhaustedResponse recognizes the inventory's "no space left" answers on
// the available-prefixes/available-ips endpoints
func isExhaustedResponse(status int, body []byte) bool {
	if status != 400 && status != 409 {
		return false
	}
	text := strings.ToLower(string(body))
	return strings.Contains(text, "insufficient space") ||
		strings.Contains(text, "available") && strings.Contains(text, "prefix") ||
		strings.Contains(text, "available") && strings.Contains(text, "ip")
}

// formatLookup formats lookup criteria for display
func formatLookup(lookup map[string]interface{}) string {
	if name, ok := lookup["name"]; ok {
		return fmt.Sprintf("name=%v", name)
	}
	if slug, ok := lookup["slug"]; ok {
		return fmt.Sprintf("slug=%v", slug)
	}
	for k, v := range lookup {
		return fmt.Sprintf("%s=%v", k, v)
	}
	return "{}"
}

// Cache returns the cache manager
func (c *NetBoxClient) Cache() *CacheManager {
	return c.cache
}

// IsDryRun returns the dry-run status
func (c *NetBoxClient) IsDryRun() bool {
	return c.dryRun
}

// Logger returns the logger
func (c *NetBoxClient) Logger() *utils.Logger {
	return c.logger
}
