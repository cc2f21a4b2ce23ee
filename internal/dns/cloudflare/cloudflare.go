package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/imroc/req/v3"

	"github.com/g0dsCookie/dehydrated-cloudflare/internal/dns"
)

const (
	providerName = "cloudflare"

	// DefaultBaseURL is the Cloudflare v4 API root.
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"
)

func init() {
	dns.Register(providerName, func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// Provider implements dns.Provider for Cloudflare.
type Provider struct {
	baseURL string
	client  *req.Client
	log     logr.Logger
}

// New creates a Cloudflare DNS provider from the given settings map.
// Authentication is either api_token, or api_email together with api_key.
// Optional settings: base_url (default DefaultBaseURL).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := req.C().
		SetUserAgent("dehydrated-cloudflare").
		SetCommonHeader("Accept", "application/json")

	token := settings["api_token"]
	email, key := settings["api_email"], settings["api_key"]
	switch {
	case token != "":
		client.SetCommonBearerAuthToken(token)
	case email != "" && key != "":
		client.SetCommonHeader("X-Auth-Email", email)
		client.SetCommonHeader("X-Auth-Key", key)
	case email != "":
		return nil, fmt.Errorf("cloudflare: setting 'api_email' requires 'api_key'")
	default:
		return nil, fmt.Errorf("cloudflare: missing required setting 'api_token' (or 'api_email' and 'api_key')")
	}

	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}, nil
}

// envelope is the response wrapper used by every v4 endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiMessage    `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type zoneResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type recordResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

type recordRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// call executes one API request and decodes the envelope's result into out.
// Transport failures are returned wrapped; rejected requests as *dns.APIError.
func (p *Provider) call(r *req.Request, method, path string, out interface{}) error {
	var env envelope
	resp, err := r.
		SetSuccessResult(&env).
		SetErrorResult(&env).
		Send(method, p.baseURL+"/"+strings.TrimLeft(path, "/"))
	if err != nil {
		return fmt.Errorf("cloudflare: %s %s: %w", method, path, err)
	}

	if resp.IsErrorState() || !env.Success {
		apiErr := &dns.APIError{Provider: providerName, StatusCode: resp.StatusCode}
		for _, m := range env.Errors {
			apiErr.Messages = append(apiErr.Messages, strconv.Itoa(m.Code)+": "+m.Message)
		}
		if len(apiErr.Messages) == 0 && resp.IsErrorState() {
			if body := strings.TrimSpace(resp.String()); body != "" {
				apiErr.Messages = []string{body}
			}
		}
		return apiErr
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("cloudflare: decode %s %s result: %w", method, path, err)
		}
	}
	return nil
}

// FindZones returns the zones named exactly name.
func (p *Provider) FindZones(ctx context.Context, name string) ([]dns.Zone, error) {
	p.log.V(1).Info("looking up zone", "name", name)

	var result []zoneResult
	r := p.client.R().
		SetContext(ctx).
		SetQueryParam("name", name)
	if err := p.call(r, http.MethodGet, "zones", &result); err != nil {
		return nil, err
	}

	zones := make([]dns.Zone, 0, len(result))
	for _, z := range result {
		zones = append(zones, dns.Zone{ID: z.ID, Name: z.Name})
	}
	return zones, nil
}

// FindRecords returns the records in the zone matching type, name and content exactly.
func (p *Provider) FindRecords(ctx context.Context, zoneID, recordType, name, content string) ([]dns.Record, error) {
	p.log.V(1).Info("looking up records", "zone", zoneID, "type", recordType, "name", name)

	var result []recordResult
	r := p.client.R().
		SetContext(ctx).
		SetPathParam("zoneID", zoneID).
		SetQueryParams(map[string]string{
			"type":    recordType,
			"name":    name,
			"content": content,
		})
	if err := p.call(r, http.MethodGet, "zones/{zoneID}/dns_records", &result); err != nil {
		return nil, err
	}

	records := make([]dns.Record, 0, len(result))
	for _, rec := range result {
		records = append(records, dns.Record{
			ID:      rec.ID,
			Name:    rec.Name,
			Type:    rec.Type,
			Content: rec.Content,
			TTL:     rec.TTL,
		})
	}
	return records, nil
}

// CreateRecord adds a record to the zone and returns it with its assigned ID.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, record dns.Record) (dns.Record, error) {
	p.log.V(1).Info("creating record", "zone", zoneID, "type", record.Type, "name", record.Name)

	var result recordResult
	r := p.client.R().
		SetContext(ctx).
		SetPathParam("zoneID", zoneID).
		SetBody(recordRequest{
			Type:    record.Type,
			Name:    record.Name,
			Content: record.Content,
			TTL:     record.TTL,
		})
	if err := p.call(r, http.MethodPost, "zones/{zoneID}/dns_records", &result); err != nil {
		return dns.Record{}, err
	}
	if result.ID == "" {
		return dns.Record{}, fmt.Errorf("cloudflare: created record %s has no id", record.Name)
	}

	record.ID = result.ID
	return record, nil
}

// DeleteRecord removes a record from the zone by ID.
func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	p.log.V(1).Info("deleting record", "zone", zoneID, "id", recordID)

	r := p.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"zoneID":   zoneID,
			"recordID": recordID,
		})
	return p.call(r, http.MethodDelete, "zones/{zoneID}/dns_records/{recordID}", nil)
}
