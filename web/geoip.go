// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Locator resolves a human-readable location hint for an IP address.
// Lookups are best-effort enrichment for the authorization prompt;
// failures degrade the prompt, never the flow.
type Locator interface {
	Locate(ctx context.Context, ip string) (string, error)
}

// HTTPLocator queries a JSON geolocation API. The endpoint is a URL
// template with the literal token {ip}.
type HTTPLocator struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewHTTPLocator creates a locator for the given endpoint template.
func NewHTTPLocator(endpoint string, timeout time.Duration) *HTTPLocator {
	if endpoint == "" {
		panic("web: NewHTTPLocator requires an endpoint")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPLocator{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Locate fetches and formats the location for ip.
func (l *HTTPLocator) Locate(ctx context.Context, ip string) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	url := strings.ReplaceAll(l.endpoint, "{ip}", ip)
	request, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("web: building geolocation request: %w", err)
	}

	response, err := l.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("web: geolocation lookup for %s: %w", ip, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web: geolocation lookup for %s: status %d", ip, response.StatusCode)
	}

	var payload struct {
		CountryName string `json:"countryName"`
		RegionName  string `json:"regionName"`
		CityName    string `json:"cityName"`
		ZipCode     string `json:"zipCode"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("web: decoding geolocation response for %s: %w", ip, err)
	}

	parts := make([]string, 0, 4)
	for _, part := range []string{payload.CountryName, payload.RegionName, payload.CityName, payload.ZipCode} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("web: empty geolocation response for %s", ip)
	}
	return strings.Join(parts, " "), nil
}
