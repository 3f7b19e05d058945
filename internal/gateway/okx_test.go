package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okxServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T, srv *httptest.Server) *OKXClient {
	t.Helper()
	return NewOKXClient(OKXConfig{
		APIKey:     "key",
		Secret:     "secret",
		Passphrase: "phrase",
		Sandbox:    true,
		BaseURL:    srv.URL,
	})
}

func TestCreateAlgoOrderAccepted(t *testing.T) {
	srv := okxServer(t, 200, `{"code":"0","msg":"","data":[{"algoId":"algo-1","sCode":"0","sMsg":""}]}`)
	c := testClient(t, srv)

	res, err := c.CreateAlgoOrder(context.Background(), AlgoOrderRequest{
		Symbol: "SOL/USDT", Size: 1, Side: SideSell, Kind: "oco",
		TakeProfitTrigger: 170, StopLossTrigger: 145,
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "algo-1", res.AlgoID)
}

func TestCreateAlgoOrderRejectionBecomesResult(t *testing.T) {
	// Per-item rejection inside the data array must surface through the
	// result, not as an error, so callers apply one rejection policy.
	srv := okxServer(t, 200, `{"code":"1","msg":"Operation failed.","data":[{"algoId":"","sCode":"51155","sMsg":"instrument restricted"}]}`)
	c := testClient(t, srv)

	res, err := c.CreateAlgoOrder(context.Background(), AlgoOrderRequest{
		Symbol: "SOL/USDT", Size: 1, Side: SideSell, Kind: "oco",
		TakeProfitTrigger: 170, StopLossTrigger: 145,
	})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, CodeSymbolRestricted, res.Code)
	assert.Equal(t, "instrument restricted", res.Message)
}

func TestPostRateLimitedMapsToAPIError(t *testing.T) {
	srv := okxServer(t, 429, `{}`)
	c := testClient(t, srv)

	_, err := c.CreateOrder(context.Background(), OrderRequest{
		Symbol: "SOL/USDT", Side: SideBuy, Type: OrderTypeMarket, Size: 1,
	})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}
