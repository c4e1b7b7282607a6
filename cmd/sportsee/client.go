// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// apiClient is a thin JSON client for a running Sports-See server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// serverURL normalizes the --server flag, defaulting to the configured
// local port when the flag is empty.
func serverURL(flag string) string {
	if flag == "" {
		return fmt.Sprintf("http://localhost:%d", settings.Port)
	}
	if !strings.Contains(flag, "://") {
		return "http://" + flag
	}
	return flag
}

// Chat posts one question and decodes the answer. Non-2xx responses are
// turned into errors carrying the server's error kind and message.
func (c *apiClient) Chat(ctx context.Context, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	var resp datatypes.ChatResponse

	payload, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/chat", bytes.NewReader(payload))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return resp, fmt.Errorf("reach server: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var envelope datatypes.ErrorResponse
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			return resp, fmt.Errorf("%s: %s", envelope.Error.Kind, envelope.Error.Message)
		}
		return resp, fmt.Errorf("server returned HTTP %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// healthReport mirrors the /healthz response body.
type healthReport struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// Health probes /healthz. A degraded server answers 503 with a valid
// body, so the HTTP status is returned alongside the report rather than
// folded into the error.
func (c *apiClient) Health(ctx context.Context) (healthReport, int, error) {
	var report healthReport

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return report, 0, err
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return report, 0, fmt.Errorf("reach server: %w", err)
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(&report); err != nil {
		return report, httpResp.StatusCode, fmt.Errorf("decode health response: %w", err)
	}
	return report, httpResp.StatusCode, nil
}
