// Package device is the client for the box controller API: RFID tag issue
// and read, servo actuation and package image verification.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrBackendCallFailed = errors.New("backend call failed")

type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: timeout}}
}

type tagResponse struct {
	TagID string `json:"tag_id"`
}

// IssueTag asks the controller to write a fresh key to the tag on the reader.
func (c *Client) IssueTag(ctx context.Context) (string, error) {
	var out tagResponse
	if err := c.do(ctx, http.MethodPost, "/create_tag/", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.TagID == "" {
		return "", fmt.Errorf("%w: create_tag: empty tag_id", ErrBackendCallFailed)
	}
	return out.TagID, nil
}

// ReadTag returns the key on the tag currently held to the reader.
func (c *Client) ReadTag(ctx context.Context) (string, error) {
	var out tagResponse
	if err := c.do(ctx, http.MethodGet, "/get_tag/", nil, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.TagID), nil
}

func (c *Client) ActuateServo(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/servo/", nil, &out); err != nil {
		return err
	}
	if out.Message != "success" {
		return fmt.Errorf("%w: servo: %q", ErrBackendCallFailed, out.Message)
	}
	return nil
}

// VerifyPackage asks the controller whether the image matches the description.
func (c *Client) VerifyPackage(ctx context.Context, description, imageURL string) (bool, error) {
	in := map[string]string{"product_description": description, "image_url": imageURL}
	var out struct {
		IsValidPackage bool `json:"isValidPackage"`
	}
	if err := c.do(ctx, http.MethodPost, "/verify_package/", in, &out); err != nil {
		return false, err
	}
	return out.IsValidPackage, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendCallFailed, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return fmt.Errorf("%w: %s: status %d %s", ErrBackendCallFailed, path, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrBackendCallFailed, path, err)
	}
	return nil
}
