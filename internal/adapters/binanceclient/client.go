package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketDataSource and ports.ExecutionClient using the
// go-binance futures API.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	serveAggTrade        aggTradeServeFunc
}

type aggTradeServeFunc func(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
	BaseURL              string        // Overrides the REST endpoint, mainly for tests
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client: %w", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
		// Allow creation for public endpoints, but log warning.
		// Authentication errors will occur if private endpoints are called.
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		serveAggTrade:        futures.WsAggTradeServe,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1000, -1001: // Unknown error / internal error, unable to process request
			mappedErr = ports.ErrExchangeUnavailable
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout // Or a specific timing error
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrPermissionDenied
		case -2019: // Margin is insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly Order is rejected
			mappedErr = ports.ErrOrderPlacementFailed // Or a more specific error
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		case -3041: // Position is not sufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003: // Qty not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4014: // Price not within permissible range
			mappedErr = ports.ErrInvalidRequest
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// FetchCandles retrieves historical candles keyed by bucket start.
func (c *Client) FetchCandles(ctx context.Context, symbol string, granularity domain.Granularity, before *int64, limit int) (map[int64]domain.Candlestick, error) {
	op := "FetchCandles"
	if symbol == "" || limit <= 0 {
		return nil, fmt.Errorf("%s failed: %w: symbol %q limit %d", op, ports.ErrInvalidRequest, symbol, limit)
	}

	svc := c.futuresClient.NewKlinesService().
		Symbol(symbol).
		Interval(granularity.String()).
		Limit(limit)
	if before != nil {
		svc = svc.EndTime(*before - 1)
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make(map[int64]domain.Candlestick, len(klines))
	for _, k := range klines {
		key, candle, err := translateKline(k, granularity)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		if before != nil && key >= *before {
			continue
		}
		candles[key] = candle
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol":      symbol,
		"granularity": granularity.String(),
		"count":       len(candles),
	})
	return candles, nil
}

// FetchCandlesRange pages backwards from end until start is covered or the
// exchange runs out of history.
func (c *Client) FetchCandlesRange(ctx context.Context, symbol string, granularity domain.Granularity, start, end time.Time) (map[int64]domain.Candlestick, error) {
	const pageLimit = 1500
	out := make(map[int64]domain.Candlestick)
	before := end.UnixMilli() + 1

	for before > start.UnixMilli() {
		page, err := c.FetchCandles(ctx, symbol, granularity, &before, pageLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		oldest := before
		for ts, candle := range page {
			if ts >= start.UnixMilli() {
				out[ts] = candle
			}
			if ts < oldest {
				oldest = ts
			}
		}
		if len(page) < pageLimit {
			break
		}
		before = oldest
	}
	return out, nil
}

// PlaceMarketOrder places a market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	binanceSide := futures.SideType(side) // Direct conversion assuming values match

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

// StreamTrades starts a reconnecting aggregated-trade stream.
func (c *Client) StreamTrades(ctx context.Context, symbol string, handler func(event domain.TradeEvent), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTrades"
	if symbol == "" || handler == nil {
		return nil, nil, fmt.Errorf("%s failed: %w", op, ports.ErrInvalidRequest)
	}
	wsCtx, cancelWs := context.WithCancel(ctx)
	fields := map[string]interface{}{"symbol": symbol}

	binanceHandler := func(event *futures.WsAggTradeEvent) {
		if event == nil {
			return
		}
		handler(translateAggTrade(event))
	}
	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	// Reconnection loop
	go func() {
		defer cancelWs()

		attempt := 0
		for {
			if wsCtx.Err() != nil {
				return
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", mergeFields(fields, map[string]interface{}{"attempt": attempt + 1}))
			innerDoneCh, innerStopCh, connectErr := c.serveAggTrade(symbol, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				_ = c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", mergeFields(fields, map[string]interface{}{"maxAttempts": c.maxReconnectAttempts}))
					if errHandler != nil {
						errHandler(fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, connectErr))
					}
					return
				}

				delay := backoffDelay(c.reconnectDelay, attempt)
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", mergeFields(fields, map[string]interface{}{"attempt": attempt + 1, "delay": delay.String()}))
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.", fields)
			attempt = 0

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)
			case <-wsCtx.Done():
				close(innerStopCh)
				c.logger.Info(wsCtx, op+": Context cancelled, stopping WebSocket.", fields)
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation
	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

// backoffDelay doubles base per attempt and adds 10% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	return delay + delay/10
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// parseDecimal parses an exchange decimal string. Malformed input yields 0.
func parseDecimal(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func parseDecimalStrict(field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s '%s': %w", field, s, err)
	}
	return d.InexactFloat64(), nil
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	return &ports.OrderResponse{
		OrderID:      order.OrderID,
		Symbol:       order.Symbol,
		AvgPrice:     parseDecimal(order.AvgPrice),
		OrigQuantity: parseDecimal(order.OrigQuantity),
		ExecutedQty:  parseDecimal(order.ExecutedQuantity),
		Status:       string(order.Status),
		Side:         string(order.Side),
		Timestamp:    time.UnixMilli(order.UpdateTime),
	}
}

func translateAggTrade(event *futures.WsAggTradeEvent) domain.TradeEvent {
	return domain.TradeEvent{
		Symbol:    event.Symbol,
		Price:     event.Price,
		Quantity:  event.Quantity,
		Timestamp: event.TradeTime,
		IsBuyer:   !event.Maker, // Maker flag is set when the buyer rested on the book
	}
}

func translateKline(bk *futures.Kline, granularity domain.Granularity) (int64, domain.Candlestick, error) {
	if bk == nil {
		return 0, domain.Candlestick{}, errors.New("received nil historical kline")
	}
	var (
		c   domain.Candlestick
		err error
	)
	if c.Open, err = parseDecimalStrict("open price", bk.Open); err != nil {
		return 0, c, err
	}
	if c.High, err = parseDecimalStrict("high price", bk.High); err != nil {
		return 0, c, err
	}
	if c.Low, err = parseDecimalStrict("low price", bk.Low); err != nil {
		return 0, c, err
	}
	if c.Close, err = parseDecimalStrict("close price", bk.Close); err != nil {
		return 0, c, err
	}
	if c.Volume, err = parseDecimalStrict("volume", bk.Volume); err != nil {
		return 0, c, err
	}
	return domain.BucketStart(bk.OpenTime, granularity), c, nil
}
