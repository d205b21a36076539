// Package chainclient delivers resolution notifications to external markets
// living on a CometBFT chain by broadcasting them as transactions.
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	rpcclient "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/cometbft/cometbft/types"
	"github.com/rangesecurity/oracle/common"
	"github.com/rs/zerolog/log"
)

// ResolutionTx is the transaction body broadcast for a resolved query.
type ResolutionTx struct {
	Type string `json:"type"`
	// Market is the on chain consumer, taken from the callback target address.
	Market       string              `json:"market"`
	Method       string              `json:"method,omitempty"`
	Notification common.Notification `json:"notification"`
}

const resolutionTxType = "oracle/resolve"

// Client broadcasts resolutions through a single CometBFT node.
type Client struct {
	node   string
	client *rpcclient.HTTP
}

// NewClient returns a chain deliverer for the node at rpcURL. A non-empty
// token is sent as a bearer token with every RPC request.
func NewClient(rpcURL, token string) (*Client, error) {
	var transport http.RoundTripper = &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if token != "" {
		transport = &AuthTransport{Transport: transport, Token: token}
	}
	httpClient := &http.Client{Transport: transport, Timeout: 15 * time.Second}
	client, err := rpcclient.NewWithClient(rpcURL, "/websocket", httpClient)
	if err != nil {
		return nil, fmt.Errorf("chain rpc %s: %w", rpcURL, err)
	}
	return &Client{node: rpcURL, client: client}, nil
}

// Deliver broadcasts the notification for the market at target.Address and
// succeeds once the transaction passed CheckTx.
func (c *Client) Deliver(ctx context.Context, target common.CallbackTarget, n common.Notification) error {
	tx, err := EncodeResolution(target, n)
	if err != nil {
		return err
	}
	res, err := c.client.BroadcastTxSync(ctx, tx)
	if err != nil {
		return fmt.Errorf("broadcast resolution: %w", err)
	}
	if res.Code != 0 {
		return fmt.Errorf("resolution tx rejected: code %d codespace %q: %s", res.Code, res.Codespace, res.Log)
	}
	log.Info().
		Uint64("query.id", n.QueryID).
		Str("market", target.Address).
		Str("node", c.node).
		Str("tx.hash", res.Hash.String()).
		Msg("broadcast resolution")
	return nil
}

func EncodeResolution(target common.CallbackTarget, n common.Notification) (types.Tx, error) {
	return json.Marshal(ResolutionTx{Type: resolutionTxType, Market: target.Address, Method: target.Method, Notification: n})
}
