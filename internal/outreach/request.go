package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spigell/talent-outreach/internal/utils"
)

const (
	contentType    = "application/json"
	maxErrorLength = 200
)

func (c *Client) post(ctx context.Context, payload Request) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outreach request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("bad status: %s: %s", resp.Status, utils.TruncateForLog(string(data), maxErrorLength))
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
	if c.serviceKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceKey))
		req.Header.Set("apikey", c.serviceKey)
	}

	return req
}
