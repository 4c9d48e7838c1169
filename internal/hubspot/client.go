// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hubspot implements a minimal client for the HubSpot CRM v3
// Contacts API: search by email, create, partial update, and
// upsert-by-email. This is deliberately not a general CRM client — the
// bridge supports exactly one object type.
//
// API docs: https://developers.hubspot.com/docs/api/crm/contacts
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultBaseURL is the root of the HubSpot CRM API.
const DefaultBaseURL = "https://api.hubapi.com"

// Properties is the contact property map sent to HubSpot.
type Properties map[string]string

// Contact is a remote contact record as returned by the search endpoint.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// APIError is a non-2xx response from HubSpot. Body is the raw error
// payload so callers can mirror it verbatim; StatusCode is never
// rewritten.
type APIError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot returned HTTP %d: %s", e.StatusCode, string(e.Body))
}

// Client talks to the HubSpot CRM v3 Contacts API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a contacts client. The httpClient must already
// handle authentication (e.g. via an oauth2 static token source).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// searchRequest is the filter payload for search-by-email.
type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []Contact `json:"results"`
}

// SearchContactByEmail returns the first contact whose email property
// equals the given address, or nil when no contact matches.
func (c *Client) SearchContactByEmail(ctx context.Context, email string) (*Contact, error) {
	payload := searchRequest{
		FilterGroups: []filterGroup{{
			Filters: []filter{{
				PropertyName: "email",
				Operator:     "EQ",
				Value:        email,
			}},
		}},
	}

	var result searchResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/crm/v3/objects/contacts/search", payload, &result); err != nil {
		return nil, err
	}

	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

type contactEnvelope struct {
	Properties Properties `json:"properties"`
}

type contactResponse struct {
	ID string `json:"id"`
}

// CreateContact creates a new contact with the full property set and
// returns the new record's ID.
func (c *Client) CreateContact(ctx context.Context, props Properties) (string, error) {
	var result contactResponse
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/crm/v3/objects/contacts", contactEnvelope{Properties: props}, &result)
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

// UpdateContact patches the named properties on an existing contact.
// Remote properties not present in props are left untouched.
func (c *Client) UpdateContact(ctx context.Context, contactID string, props Properties) error {
	return c.doJSON(ctx, http.MethodPatch, c.baseURL+"/crm/v3/objects/contacts/"+contactID, contactEnvelope{Properties: props}, nil)
}

type upsertRequest struct {
	Inputs []upsertInput `json:"inputs"`
}

type upsertInput struct {
	IDProperty string     `json:"idProperty"`
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
}

type upsertResponse struct {
	Results []upsertResult `json:"results"`
}

type upsertResult struct {
	ID  string `json:"id"`
	New bool   `json:"new"`
}

// UpsertContactByEmail issues a single-record batch upsert keyed on the
// email property. HubSpot decides create vs update internally and
// reports which branch it took via the per-record "new" flag.
func (c *Client) UpsertContactByEmail(ctx context.Context, email string, props Properties) (id string, created bool, err error) {
	payload := upsertRequest{
		Inputs: []upsertInput{{
			IDProperty: "email",
			ID:         email,
			Properties: props,
		}},
	}

	var result upsertResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/crm/v3/objects/contacts/batch/upsert", payload, &result); err != nil {
		return "", false, err
	}

	if len(result.Results) == 0 {
		return "", false, fmt.Errorf("upsert returned no results for %s", email)
	}
	return result.Results[0].ID, result.Results[0].New, nil
}

// doJSON sends a JSON request and decodes a JSON response. Non-2xx
// statuses become an *APIError carrying the raw body.
func (c *Client) doJSON(ctx context.Context, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hubspot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		if len(raw) == 0 || !json.Valid(raw) {
			raw, _ = json.Marshal(map[string]string{"message": string(raw)})
		}
		return &APIError{StatusCode: resp.StatusCode, Body: raw}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
