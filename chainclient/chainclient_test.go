package chainclient_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rangesecurity/oracle/chainclient"
	"github.com/rangesecurity/oracle/common"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Tx string `json:"tx"`
	} `json:"params"`
}

// fakeNode answers broadcast_tx_sync with the given check code and records what it saw.
func fakeNode(t *testing.T, code uint32, seen chan<- rpcRequest, auth chan<- string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		auth <- r.Header.Get("Authorization")
		seen <- req
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":{"code":%d,"data":"","log":"checked","codespace":"oracle","hash":"ABCD"}}`, req.ID, code)
	}))
}

func notification() common.Notification {
	return common.Notification{
		QueryID:             7,
		FinalOutcome:        1,
		OutcomeValue:        "no",
		AggregateConfidence: 80,
		ResolvedAt:          time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC),
		CallbackData:        "market-42",
	}
}

func TestDeliverBroadcastsResolution(t *testing.T) {
	seen := make(chan rpcRequest, 1)
	auth := make(chan string, 1)
	srv := fakeNode(t, 0, seen, auth)
	defer srv.Close()

	client, err := chainclient.NewClient(srv.URL, "secret")
	require.NoError(t, err)
	target := common.CallbackTarget{Kind: common.TargetChain, Address: "market-1", Method: "resolve_market"}
	require.NoError(t, client.Deliver(context.Background(), target, notification()))

	require.Equal(t, "Bearer secret", <-auth)
	req := <-seen
	require.Equal(t, "broadcast_tx_sync", req.Method)
	raw, err := base64.StdEncoding.DecodeString(req.Params.Tx)
	require.NoError(t, err)
	var tx chainclient.ResolutionTx
	require.NoError(t, json.Unmarshal(raw, &tx))
	require.Equal(t, "oracle/resolve", tx.Type)
	require.Equal(t, "market-1", tx.Market)
	require.Equal(t, "resolve_market", tx.Method)
	require.Equal(t, notification(), tx.Notification)
}

func TestDeliverRejectedTx(t *testing.T) {
	seen := make(chan rpcRequest, 1)
	auth := make(chan string, 1)
	srv := fakeNode(t, 5, seen, auth)
	defer srv.Close()

	client, err := chainclient.NewClient(srv.URL, "")
	require.NoError(t, err)
	target := common.CallbackTarget{Kind: common.TargetChain, Address: "market-1"}
	err = client.Deliver(context.Background(), target, notification())
	require.ErrorContains(t, err, "code 5")
	require.Empty(t, <-auth)
}
