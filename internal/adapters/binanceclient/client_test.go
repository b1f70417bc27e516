package binanceclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "key", SecretKey: "secret", UseTestnet: true, Logger: &mockLogger{}, BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

const dayMs = int64(86_400_000)

func TestNew_RequiresLogger(t *testing.T) {
	c, err := New(Config{})
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestFetchCandles(t *testing.T) {
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		gotQuery = map[string]string{
			"symbol":   r.URL.Query().Get("symbol"),
			"interval": r.URL.Query().Get("interval"),
			"limit":    r.URL.Query().Get("limit"),
			"endTime":  r.URL.Query().Get("endTime"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[86400000,"100.5","110","95","105","12.5",172799999,"0",10,"0","0","0"],
			[172800000,"105","106","101","102","3",259199999,"0",4,"0","0","0"],
			[259200000,"102","103","100","101","1",345599999,"0",2,"0","0","0"]
		]`))
	})

	before := 3 * dayMs
	candles, err := c.FetchCandles(context.Background(), "BTCUSDT", domain.Day, &before, 500)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotQuery["symbol"])
	assert.Equal(t, "1d", gotQuery["interval"])
	assert.Equal(t, "500", gotQuery["limit"])
	assert.Equal(t, "259199999", gotQuery["endTime"])

	// The last kline starts at before and is dropped.
	require.Len(t, candles, 2)
	assert.Equal(t, domain.Candlestick{Open: 100.5, High: 110, Low: 95, Close: 105, Volume: 12.5}, candles[dayMs])
	_, ok := candles[3*dayMs]
	assert.False(t, ok)
}

func TestFetchCandles_InvalidRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.FetchCandles(context.Background(), "", domain.Minute1, nil, 10)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestFetchCandles_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.FetchCandles(context.Background(), "NOPE", domain.Minute1, nil, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestPlaceMarketOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId":42,"symbol":"BTCUSDT","status":"FILLED","avgPrice":"50000.5","origQty":"0.001","executedQty":"0.001","side":"BUY","type":"MARKET","updateTime":1700000000000}`))
	})

	resp, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.Buy, "0.001")
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.OrderID)
	assert.Equal(t, "FILLED", resp.Status)
	assert.Equal(t, 50000.5, resp.AvgPrice)
	assert.Equal(t, 0.001, resp.ExecutedQty)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), resp.Timestamp)
}

func TestHandleError(t *testing.T) {
	c := &Client{logger: &mockLogger{}}
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", &common.APIError{Code: -1003, Message: "too many"}, ports.ErrRateLimited},
		{"rejected order", &common.APIError{Code: -2010, Message: "rejected"}, ports.ErrOrderPlacementFailed},
		{"exchange internal error", &common.APIError{Code: -1001, Message: "disconnected"}, ports.ErrExchangeUnavailable},
		{"invalid symbol", &common.APIError{Code: -1121, Message: "Invalid symbol."}, ports.ErrNotFound},
		{"key lacks permission", &common.APIError{Code: -2015, Message: "Invalid API-key, IP, or permissions"}, ports.ErrPermissionDenied},
		{"insufficient margin", &common.APIError{Code: -2019, Message: "margin"}, ports.ErrInsufficientFunds},
		{"unmapped api code", &common.APIError{Code: -9999, Message: "?"}, ports.ErrUnknown},
		{"deadline", context.DeadlineExceeded, ports.ErrTimeout},
		{"canceled", context.Canceled, ports.ErrContextCanceled},
		{"connection refused", errors.New("dial tcp: connection refused"), ports.ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.handleError(ctx, tt.err, "Op")
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, c.handleError(ctx, nil, "Op"))
}

func TestStreamTrades(t *testing.T) {
	var (
		mu      sync.Mutex
		calls   int
		stopped = make(chan struct{})
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	c.reconnectDelay = time.Millisecond
	c.serveAggTrade = func(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, nil, errors.New("connection refused")
		}

		done, stop := make(chan struct{}), make(chan struct{})
		go func() {
			handler(&futures.WsAggTradeEvent{Symbol: symbol, Price: "101.5", Quantity: "0.2", TradeTime: 1234, Maker: true})
			<-stop
			close(stopped)
			close(done)
		}()
		return done, stop, nil
	}

	events := make(chan domain.TradeEvent, 1)
	done, stop, err := c.StreamTrades(context.Background(), "BTCUSDT", func(e domain.TradeEvent) { events <- e }, nil)
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, domain.TradeEvent{Symbol: "BTCUSDT", Price: "101.5", Quantity: "0.2", Timestamp: 1234, IsBuyer: false}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("no trade event received")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("inner stream did not receive stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestParseDecimal(t *testing.T) {
	assert.Equal(t, 0.00012, parseDecimal("0.00012"))
	assert.Equal(t, 0.0, parseDecimal("not-a-number"))
	assert.Equal(t, 0.0, parseDecimal(""))
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 110*time.Millisecond, backoffDelay(100*time.Millisecond, 1))
	assert.Equal(t, 220*time.Millisecond, backoffDelay(100*time.Millisecond, 2))
	assert.Equal(t, backoffDelay(time.Second, 6), backoffDelay(time.Second, 20))
}
