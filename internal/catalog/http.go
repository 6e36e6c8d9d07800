package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"flipper-bridge/pkg/log"
)

// unknownSDKCode is the backend error code for a device API level the
// catalog does not recognize.
const unknownSDKCode = 1001

// Client is the HTTP implementation of the Catalog surface.
type Client struct {
	base string
	hc   *http.Client
}

var _ Catalog = (*Client)(nil)

// NewClient creates a catalog client for the given base URL.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type categoryJSON struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	IconURI  string `json:"icon_uri"`
	Color    string `json:"color"`
	Priority int    `json:"priority"`
}

type versionJSON struct {
	ID       string `json:"_id"`
	IconURI  string `json:"icon_uri"`
	BuildAPI string `json:"build_api"`
	Status   string `json:"status"`
}

type applicationJSON struct {
	ID         string      `json:"_id"`
	Alias      string      `json:"alias"`
	CategoryID string      `json:"category_id"`
	Current    versionJSON `json:"current_version"`
	Name       string      `json:"name"`
	Summary    string      `json:"short_description"`

	Description string `json:"description,omitempty"`
	Changelog   string `json:"changelog,omitempty"`
}

type errorJSON struct {
	Detail struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Categories fetches all application categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var raw []categoryJSON
	if err := c.getJSON(ctx, "/category", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(raw))
	for _, r := range raw {
		out = append(out, Category{
			ID:       r.ID,
			Name:     r.Name,
			Icon:     r.IconURI,
			Color:    r.Color,
			Priority: r.Priority,
		})
	}
	return out, nil
}

// Featured fetches the curated front-page application list.
func (c *Client) Featured(ctx context.Context) ([]ApplicationInfo, error) {
	var raw []applicationJSON
	if err := c.getJSON(ctx, "/application/featured", nil, &raw); err != nil {
		return nil, err
	}
	return infoList(raw), nil
}

// Applications queries the catalog list with the given filter.
func (c *Client) Applications(ctx context.Context, filter Filter) ([]ApplicationInfo, error) {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category_id", filter.Category)
	}
	if filter.Search != "" {
		q.Set("query", filter.Search)
	}
	for _, uid := range filter.UIDs {
		q.Add("applications", uid)
	}
	if filter.SortBy != "" {
		q.Set("sort_by", filter.SortBy)
		q.Set("sort_order", strconv.Itoa(filter.Order))
	}
	if filter.Target != "" {
		q.Set("target", filter.Target)
	}
	if filter.API != "" {
		q.Set("api", filter.API)
	}
	q.Set("offset", strconv.Itoa(filter.Skip))
	if filter.Take > 0 {
		q.Set("limit", strconv.Itoa(filter.Take))
	}

	var raw []applicationJSON
	if err := c.getJSON(ctx, "/application", q, &raw); err != nil {
		return nil, err
	}
	return infoList(raw), nil
}

// Application fetches the full catalog entity for one uid.
func (c *Client) Application(ctx context.Context, uid string) (Application, error) {
	var raw applicationJSON
	if err := c.getJSON(ctx, "/application/"+url.PathEscape(uid), nil, &raw); err != nil {
		return Application{}, err
	}
	return Application{
		ApplicationInfo: info(raw),
		Description:     raw.Description,
		Changelog:       raw.Changelog,
	}, nil
}

// Build downloads the binary of a version compatible with the given target
// and API level.
func (c *Client) Build(ctx context.Context, versionUID, target, api string) ([]byte, error) {
	q := url.Values{}
	if target != "" {
		q.Set("target", target)
	}
	if api != "" {
		q.Set("api", api)
	}
	return c.getBytes(ctx, c.base+"/application/version/"+url.PathEscape(versionUID)+"/build/compatible", q)
}

// Icon fetches icon bytes. Relative URIs are resolved against the catalog
// base URL.
func (c *Client) Icon(ctx context.Context, uri string) ([]byte, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.base + "/" + strings.TrimLeft(uri, "/")
	}
	return c.getBytes(ctx, target, nil)
}

// Report submits a user report about an application. Each submission gets a
// client-generated id so backend-side deduplication can tie retries together.
func (c *Client) Report(ctx context.Context, uid, description string) error {
	payload, err := json.Marshal(map[string]string{
		"id":          uuid.NewString(),
		"description": description,
	})
	if err != nil {
		return err
	}
	u := c.base + "/application/" + url.PathEscape(uid) + "/issue"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	data, err := c.getBytes(ctx, c.base+path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getBytes(ctx context.Context, u string, q url.Values) ([]byte, error) {
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr errorJSON
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail.Code == unknownSDKCode {
		return fmt.Errorf("%w: %s", ErrUnknownSDK, apiErr.Detail.Message)
	}
	log.Debug("catalog: request failed", "status", resp.StatusCode, "body", string(body))
	return fmt.Errorf("catalog: unexpected status %d", resp.StatusCode)
}

func info(r applicationJSON) ApplicationInfo {
	return ApplicationInfo{
		UID:        r.ID,
		Alias:      r.Alias,
		CategoryID: r.CategoryID,
		Name:       r.Name,
		Summary:    r.Summary,
		Current: Version{
			UID:      r.Current.ID,
			IconURI:  r.Current.IconURI,
			BuildAPI: r.Current.BuildAPI,
			Status:   VersionStatus(r.Current.Status),
		},
	}
}

func infoList(raw []applicationJSON) []ApplicationInfo {
	out := make([]ApplicationInfo, 0, len(raw))
	for _, r := range raw {
		out = append(out, info(r))
	}
	return out
}
