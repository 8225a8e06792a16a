package upstox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"options-momentum-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, AccessToken: "tok"})
	c.now = func() time.Time { return time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestExpiriesSortedAndPastDropped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/option/contract", r.URL.Path)
		assert.Equal(t, "NSE_INDEX|Nifty Bank", r.URL.Query().Get("instrument_key"))
		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"expiry":"2026-10-28","instrument_key":"NSE_FO|1"},
			{"expiry":"2026-10-08","instrument_key":"NSE_FO|2"},
			{"expiry":"2026-10-20","instrument_key":"NSE_FO|3"},
			{"expiry":"2026-10-28","instrument_key":"NSE_FO|4"}]}`))
	})

	got, err := c.Expiries(context.Background(), "NIFTYBANK")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-20", "2026-10-28"}, got)
}

func TestOptionChainMapsSides(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/option/chain", r.URL.Path)
		assert.Equal(t, "2026-10-20", r.URL.Query().Get("expiry_date"))
		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"strike_price":52000,"call_options":{"instrument_key":"NSE_FO|10","market_data":{"ltp":101.5}},
			 "put_options":{"instrument_key":"NSE_FO|11","market_data":{"ltp":88}}},
			{"strike_price":52100,"call_options":{"instrument_key":"NSE_FO|12","market_data":{"ltp":95}}}]}`))
	})

	chain, err := c.OptionChain(context.Background(), "NIFTYBANK", "2026-10-20")
	require.NoError(t, err)
	require.Len(t, chain.Strikes, 2)
	assert.Equal(t, 52000.0, chain.Strikes[0].Strike)
	assert.Equal(t, "NSE_FO|10", chain.Strikes[0].Call.Key)
	assert.Equal(t, 88.0, chain.Strikes[0].Put.LTP)
	assert.Nil(t, chain.Strikes[1].Put)
	assert.Equal(t, "2026-10-20", chain.Expiry)
}

func TestLTP(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NSE_FO|10", r.URL.Query().Get("instrument_key"))
		_, _ = w.Write([]byte(`{"status":"success","data":{"NSE_FO:BANKNIFTY26OCT52000CE":{"last_price":104.25,"instrument_token":"NSE_FO|10"}}}`))
	})

	ltp, err := c.LTP(context.Background(), types.Instrument{Key: "NSE_FO|10"})
	require.NoError(t, err)
	assert.Equal(t, 104.25, ltp)
}

func TestLTPMissingQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{}}`))
	})

	_, err := c.LTP(context.Background(), types.Instrument{Key: "NSE_FO|10"})
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestPlaceOrderUsesAveragePrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/order/place":
			var body placeOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "I", body.Product)
			assert.Equal(t, "MARKET", body.OrderType)
			assert.Equal(t, "BUY", body.TransactionType)
			assert.Equal(t, "NSE_FO|10", body.InstrumentToken)
			assert.Equal(t, 35, body.Quantity)
			_, _ = w.Write([]byte(`{"status":"success","data":{"order_id":"240101000001"}}`))
		case "/order/details":
			assert.Equal(t, "240101000001", r.URL.Query().Get("order_id"))
			_, _ = w.Write([]byte(`{"status":"success","data":{"status":"complete","average_price":102.1}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	fill, err := c.PlaceOrder(context.Background(), types.OrderRequest{
		Instrument: types.Instrument{Key: "NSE_FO|10"},
		Side:       types.Buy,
		Quantity:   35,
		Price:      101.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "240101000001", fill.OrderID)
	assert.Equal(t, 102.1, fill.Price)
	assert.Equal(t, types.Live, fill.Mode)
}

func TestPlaceOrderFallsBackToObservedPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/order/details" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"order_id":"7"}}`))
	})

	fill, err := c.PlaceOrder(context.Background(), types.OrderRequest{
		Instrument: types.Instrument{Key: "NSE_FO|10"}, Side: types.Sell, Quantity: 35, Price: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, 99.0, fill.Price)
}

func TestPlaceOrderRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/order/details" {
			_, _ = w.Write([]byte(`{"status":"success","data":{"status":"rejected","status_message":"margin"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"order_id":"7"}}`))
	})

	_, err := c.PlaceOrder(context.Background(), types.OrderRequest{
		Instrument: types.Instrument{Key: "NSE_FO|10"}, Side: types.Buy, Quantity: 35, Price: 99,
	})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestPlaceOrderHTTPErrorNotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.PlaceOrder(context.Background(), types.OrderRequest{
		Instrument: types.Instrument{Key: "NSE_FO|10"}, Side: types.Buy, Quantity: 35, Price: 99,
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
