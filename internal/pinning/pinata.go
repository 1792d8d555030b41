package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://api.pinata.cloud"
	DefaultGateway  = "https://gateway.pinata.cloud"
)

var ErrPinFailed = errors.New("pin failed")

// Client pins files to IPFS through Pinata.
type Client struct {
	Endpoint  string
	Gateway   string
	APIKey    string
	APISecret string
	Client    *http.Client
}

func NewClient(apiKey, apiSecret, gateway string, timeout time.Duration) *Client {
	if gateway == "" {
		gateway = DefaultGateway
	}
	return &Client{
		Endpoint:  DefaultEndpoint,
		Gateway:   strings.TrimRight(gateway, "/"),
		APIKey:    apiKey,
		APISecret: apiSecret,
		Client:    &http.Client{Timeout: timeout},
	}
}

// PinFile uploads r as a CIDv1 pin and returns the CID.
func (c *Client) PinFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", err
	}
	meta, _ := json.Marshal(map[string]string{"name": name})
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return "", err
	}
	if err := mw.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/pinning/pinFileToIPFS", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("pinata_api_key", c.APIKey)
	req.Header.Set("pinata_secret_api_key", c.APISecret)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPinFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrPinFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrPinFailed, err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("%w: empty IpfsHash", ErrPinFailed)
	}
	return out.IpfsHash, nil
}

func (c *Client) GatewayURL(cid string) string {
	return c.Gateway + "/ipfs/" + cid
}
