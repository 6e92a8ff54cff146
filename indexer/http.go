// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/logging"
)

// request is the JSON-RPC style envelope of one collection query.
type request struct {
	ID     string                  `json:"id"`
	Method string                  `json:"method"`
	Params ParamsOfQueryCollection `json:"params"`
}

// response is the envelope the indexer answers with.
type response struct {
	ID     string            `json:"id"`
	Result []json.RawMessage `json:"result"`
	Error  *responseError    `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPClient queries the indexer over HTTP with JSON bodies. Every request
// carries a correlation ID that is logged and echoed in errors.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	log      *logging.Logger
}

// NewHTTPClient creates a client for the given endpoint. A zero timeout
// defaults to 60 seconds.
func NewHTTPClient(endpoint string, timeout time.Duration, log *logging.Logger) *HTTPClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.WithComponent("indexer"),
	}
}

// QueryCollection implements Client.
func (c *HTTPClient) QueryCollection(ctx context.Context, params ParamsOfQueryCollection) ([]Row, error) {
	requestID := uuid.NewString()

	body, err := json.Marshal(request{
		ID:     requestID,
		Method: "query_collection",
		Params: params,
	})
	if err != nil {
		return nil, errors.Internal(err, "query encoding")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeQueryFailed, "request %s: invalid endpoint %q", requestID, c.endpoint)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeQueryFailed, "request %s: query to %q failed", requestID, c.endpoint)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeQueryFailed, "request %s: reading response", requestID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrorCodeQueryFailed,
			"request %s: indexer returned status %d: %s", requestID, resp.StatusCode, truncate(raw, 256))
	}

	var envelope response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeQueryFailed, "request %s: malformed response", requestID)
	}
	if envelope.Error != nil {
		return nil, errors.Newf(errors.ErrorCodeQueryFailed,
			"request %s: indexer rejected query: %s", requestID, envelope.Error.Message)
	}

	rows := make([]Row, len(envelope.Result))
	for i, rawRow := range envelope.Result {
		var row map[string]any
		if err := json.Unmarshal(rawRow, &row); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorCodeQueryFailed, "request %s: malformed row %d", requestID, i)
		}
		rows[i] = Row(row)
	}

	c.log.Debug("collection query",
		logging.Field{Key: "request_id", Value: requestID},
		logging.Field{Key: "collection", Value: params.Collection},
		logging.Field{Key: "rows", Value: len(rows)},
		logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	)
	return rows, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
