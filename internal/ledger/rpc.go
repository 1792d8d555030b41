package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/observability"
)

const defaultModule = "smartboxmod"

// RPCClient talks to the smart box contract through a Supra RPC node. Views
// go to ViewURL; entry functions go to SubmitURL, a relayer that signs and
// submits on behalf of the service account.
type RPCClient struct {
	ViewURL     string
	SubmitURL   string
	Contract    string
	Module      string
	Concurrency int
	Client      *http.Client
}

func NewRPCClient(viewURL, submitURL, contract string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		ViewURL:     viewURL,
		SubmitURL:   submitURL,
		Contract:    contract,
		Module:      defaultModule,
		Concurrency: 8,
		Client:      &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

type rpcResponse struct {
	Result []json.RawMessage `json:"result"`
	Error  string            `json:"error,omitempty"`
}

func (c *RPCClient) function(name string) string {
	return c.Contract + "::" + c.Module + "::" + name
}

func (c *RPCClient) call(ctx context.Context, endpoint, name string, args ...string) (res []json.RawMessage, err error) {
	defer func() { observability.LedgerCalls.WithLabelValues(name, observability.Result(err)).Inc() }()

	if args == nil {
		args = []string{}
	}
	body, err := json.Marshal(rpcRequest{Function: c.function(name), TypeArguments: []string{}, Arguments: args})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLedgerCallFailed, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrLedgerCallFailed, name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrLedgerCallFailed, name, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrLedgerCallFailed, name, out.Error)
	}
	return out.Result, nil
}

func (c *RPCClient) GetOrder(ctx context.Context, id uint64) (models.Order, error) {
	res, err := c.call(ctx, c.ViewURL, "get_order_details", strconv.FormatUint(id, 10))
	if err != nil {
		return models.Order{}, err
	}
	if len(res) == 0 || string(res[0]) == "null" {
		return models.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	var raw rawOrder
	if err := json.Unmarshal(res[0], &raw); err != nil {
		return models.Order{}, fmt.Errorf("%w: get_order_details: decode order: %v", ErrLedgerCallFailed, err)
	}
	o := raw.toOrder()
	if o.ID == 0 {
		o.ID = id
	}
	return o, nil
}

// ListOrders reads the id list and fetches the orders concurrently,
// preserving the ledger's order.
func (c *RPCClient) ListOrders(ctx context.Context) ([]models.Order, error) {
	res, err := c.call(ctx, c.ViewURL, "get_order_ids")
	if err != nil {
		return nil, err
	}
	var ids []flexUint
	if len(res) > 0 {
		if err := json.Unmarshal(res[0], &ids); err != nil {
			return nil, fmt.Errorf("%w: get_order_ids: decode: %v", ErrLedgerCallFailed, err)
		}
	}

	orders := make([]models.Order, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			o, err := c.GetOrder(gctx, uint64(id))
			if err != nil {
				return err
			}
			orders[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *RPCClient) CreateOrder(ctx context.Context, in models.NewOrder) (uint64, error) {
	res, err := c.call(ctx, c.SubmitURL, "create_order",
		in.Metadata,
		in.CID,
		in.CustomerName,
		in.Description,
		formatFloat(in.DeliveryFees),
		in.CustomerWallet,
		in.DeliveryAgentWallet,
		formatFloat(in.DeliveryLatitude),
		formatFloat(in.DeliveryLongitude),
		in.CustomerRFID,
		in.DeliveryAgentRFID,
		in.Content,
		in.DeliveryAddress,
		in.EscrowRef,
	)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("%w: create_order: empty result", ErrLedgerCallFailed)
	}
	var id flexUint
	if err := json.Unmarshal(res[0], &id); err != nil {
		return 0, fmt.Errorf("%w: create_order: decode id: %v", ErrLedgerCallFailed, err)
	}
	return uint64(id), nil
}

func (c *RPCClient) MarkDelivered(ctx context.Context, id uint64) error {
	_, err := c.call(ctx, c.SubmitURL, "mark_as_delivered", strconv.FormatUint(id, 10))
	return err
}

func (c *RPCClient) ReleaseFunds(ctx context.Context, id uint64) error {
	_, err := c.call(ctx, c.SubmitURL, "release_funds", strconv.FormatUint(id, 10))
	return err
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
