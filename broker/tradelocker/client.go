// Package tradelocker implements the broker.Session contract against
// the TradeLocker public API.
package tradelocker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/verstige-os/copydesk/broker"
)

const (
	// DemoBaseURL is the demo environment entry point.
	DemoBaseURL = "https://demo.tradelocker.com/backend-api"
	// LiveBaseURL is the live environment entry point.
	LiveBaseURL = "https://live.tradelocker.com/backend-api"

	// canonicalSuffix is the path every TradeLocker base URL must end
	// with. Older account rows stored bare hosts or an "/api" suffix.
	canonicalSuffix = "/backend-api"
)

// BrokerCode identifies this integration in store rows and execution
// records.
const BrokerCode = "tradelocker"

// NormalizeBaseURL rewrites stale base-URL forms from earlier schema
// versions to the current canonical suffix, so sessions cached before
// the URL change keep working without a data migration.
func NormalizeBaseURL(raw string) string {
	if raw == "" {
		return DemoBaseURL
	}
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	u = strings.TrimSuffix(u, canonicalSuffix)
	u = strings.TrimSuffix(u, "/api")
	return u + canonicalSuffix
}

// Client is an authenticated TradeLocker session. It caches the token
// pair, the selected account and the symbol-to-instrument mapping for
// its lifetime, and is safe for concurrent use.
type Client struct {
	creds      broker.Credentials
	baseURL    string
	httpClient *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	accountID    string
	accNum       int
	instruments  map[string]int64
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokens seeds a previously persisted token pair so the resolver
// can try a refresh before a full login.
func WithTokens(access, refresh string) Option {
	return func(c *Client) {
		c.accessToken = access
		c.refreshToken = refresh
	}
}

// WithAccount pre-selects a known account id and number, skipping the
// list-and-match round trip on resume.
func WithAccount(accountID string, accNum int) Option {
	return func(c *Client) {
		c.accountID = accountID
		c.accNum = accNum
	}
}

// NewClient builds a session for the given credentials. The base URL is
// normalized; no network traffic happens until the first call.
func NewClient(creds broker.Credentials, opts ...Option) *Client {
	c := &Client{
		creds:       creds,
		baseURL:     NormalizeBaseURL(creds.BrokerURL),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		instruments: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized API entry point.
func (c *Client) BaseURL() string { return c.baseURL }

// envelope unwraps TradeLocker's optional {"d": {...}} response wrapper.
func unwrap(raw []byte) []byte {
	var env struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.D) > 0 {
		return env.D
	}
	return raw
}

func (c *Client) do(ctx context.Context, method, path string, body any, withAccNum bool) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	if withAccNum {
		req.Header.Set("accNum", strconv.Itoa(c.accNum))
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// Authenticate performs the JWT login handshake and stores the
// resulting token pair on the session.
func (c *Client) Authenticate(ctx context.Context) (broker.TokenPair, error) {
	payload := map[string]string{
		"email":    c.creds.Email,
		"password": c.creds.Password,
		"server":   c.creds.Server,
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/auth/jwt/token", payload, false)
	if err != nil {
		return broker.TokenPair{}, err
	}
	if status != http.StatusOK {
		return broker.TokenPair{}, &broker.AuthError{Op: "login", Err: fmt.Errorf("status %d: %s", status, raw)}
	}

	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return broker.TokenPair{}, fmt.Errorf("decode login response: %w", err)
	}
	if body.AccessToken == "" {
		return broker.TokenPair{}, &broker.AuthError{Op: "login", Err: fmt.Errorf("no access token in response")}
	}

	c.mu.Lock()
	c.accessToken = body.AccessToken
	c.refreshToken = body.RefreshToken
	c.mu.Unlock()

	return broker.TokenPair{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
}

// Refresh exchanges a refresh token for a fresh pair. A rejected
// refresh token surfaces as an AuthError so the resolver falls back to
// a full login.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (broker.TokenPair, error) {
	raw, status, err := c.do(ctx, http.MethodPost, "/auth/jwt/refresh", map[string]string{"refreshToken": refreshToken}, false)
	if err != nil {
		return broker.TokenPair{}, err
	}
	if status != http.StatusOK {
		return broker.TokenPair{}, &broker.AuthError{Op: "refresh", Err: fmt.Errorf("status %d", status)}
	}

	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return broker.TokenPair{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return broker.TokenPair{}, &broker.AuthError{Op: "refresh", Err: fmt.Errorf("no access token in response")}
	}

	c.mu.Lock()
	c.accessToken = body.AccessToken
	if body.RefreshToken != "" {
		c.refreshToken = body.RefreshToken
	}
	c.mu.Unlock()

	return broker.TokenPair{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
}

type apiAccount struct {
	ID       json.Number `json:"id"`
	AccNum   json.Number `json:"accNum"`
	Name     string      `json:"name"`
	Currency string      `json:"currency"`
	Balance  json.Number `json:"accountBalance"`
}

// ListAccounts returns all accounts reachable with the current token.
func (c *Client) ListAccounts(ctx context.Context) ([]broker.Account, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/auth/jwt/all-accounts", nil, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &broker.AuthError{Op: "list accounts", Err: fmt.Errorf("status %d", status)}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list accounts: status %d: %s", status, raw)
	}

	var body struct {
		Accounts []apiAccount `json:"accounts"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	accounts := make([]broker.Account, 0, len(body.Accounts))
	for _, a := range body.Accounts {
		num, _ := strconv.Atoi(a.AccNum.String())
		bal, _ := a.Balance.Float64()
		accounts = append(accounts, broker.Account{
			ID:       a.ID.String(),
			Number:   num,
			Name:     a.Name,
			Currency: a.Currency,
			Balance:  bal,
		})
	}
	return accounts, nil
}

// SelectAccount pins the session to one account, setting the accNum
// header value used by all /trade calls.
func (c *Client) SelectAccount(ctx context.Context, accountID string) error {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.ID == accountID {
			c.mu.Lock()
			c.accountID = a.ID
			c.accNum = a.Number
			c.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("account %s not found under this login", accountID)
}

// SelectFirstAccount pins the session to the first listed account,
// used when no account preference was stored.
func (c *Client) SelectFirstAccount(ctx context.Context) error {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts under this login")
	}
	c.mu.Lock()
	c.accountID = accounts[0].ID
	c.accNum = accounts[0].Number
	c.mu.Unlock()
	return nil
}

func (c *Client) selectedAccount() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accountID == "" {
		return "", fmt.Errorf("no account selected")
	}
	return c.accountID, nil
}

// GetBalance fetches a fresh account snapshot. Never cached: position
// sizing must not run on stale balance.
func (c *Client) GetBalance(ctx context.Context) (broker.Balance, error) {
	accountID, err := c.selectedAccount()
	if err != nil {
		return broker.Balance{}, err
	}

	raw, status, err := c.do(ctx, http.MethodGet, "/trade/accounts/"+accountID, nil, true)
	if err != nil {
		return broker.Balance{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return broker.Balance{}, &broker.AuthError{Op: "get balance", Err: fmt.Errorf("status %d", status)}
	}
	if status != http.StatusOK {
		return broker.Balance{}, fmt.Errorf("get balance: status %d: %s", status, raw)
	}

	var body struct {
		Balance         float64 `json:"balance"`
		Equity          float64 `json:"equity"`
		MarginUsed      float64 `json:"marginUsed"`
		MarginAvailable float64 `json:"marginAvailable"`
		Currency        string  `json:"currency"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return broker.Balance{}, fmt.Errorf("decode balance: %w", err)
	}
	if body.Currency == "" {
		body.Currency = "USD"
	}
	return broker.Balance{
		Balance:    body.Balance,
		Equity:     body.Equity,
		MarginUsed: body.MarginUsed,
		FreeMargin: body.MarginAvailable,
		Currency:   body.Currency,
	}, nil
}

type apiPosition struct {
	ID         json.Number `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       string      `json:"side"`
	Qty        float64     `json:"qty"`
	OpenPrice  float64     `json:"openPrice"`
	AvgPrice   float64     `json:"avgPrice"`
	StopLoss   float64     `json:"stopLoss"`
	TakeProfit float64     `json:"takeProfit"`
	Profit     float64     `json:"unrealizedPl"`
	Swap       float64     `json:"swap"`
	Commission float64     `json:"commission"`
	OpenedAt   int64       `json:"openDate"`
}

// GetPositions returns the account's open positions.
func (c *Client) GetPositions(ctx context.Context) ([]broker.Position, error) {
	accountID, err := c.selectedAccount()
	if err != nil {
		return nil, err
	}

	raw, status, err := c.do(ctx, http.MethodGet, "/trade/accounts/"+accountID+"/positions", nil, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &broker.AuthError{Op: "get positions", Err: fmt.Errorf("status %d", status)}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get positions: status %d: %s", status, raw)
	}

	var body struct {
		Positions []apiPosition `json:"positions"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]broker.Position, 0, len(body.Positions))
	for _, p := range body.Positions {
		open := p.OpenPrice
		if open == 0 {
			open = p.AvgPrice
		}
		positions = append(positions, broker.Position{
			ID:         p.ID.String(),
			Symbol:     p.Symbol,
			Side:       p.Side,
			Quantity:   p.Qty,
			OpenPrice:  open,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
			Profit:     p.Profit,
			Swap:       p.Swap,
			Commission: p.Commission,
			OpenedAt:   time.UnixMilli(p.OpenedAt).UTC(),
		})
	}
	return positions, nil
}

type apiHistoryRow struct {
	PositionID json.Number `json:"positionId"`
	Symbol     string      `json:"symbol"`
	Side       string      `json:"side"`
	Qty        float64     `json:"qty"`
	OpenPrice  float64     `json:"openPrice"`
	ClosePrice float64     `json:"closePrice"`
	Profit     float64     `json:"profit"`
	Swap       float64     `json:"swap"`
	Commission float64     `json:"commission"`
	ClosedAt   int64       `json:"closeDate"`
}

// GetHistory returns recently closed trades for the selected account.
func (c *Client) GetHistory(ctx context.Context) ([]broker.ClosedTrade, error) {
	accountID, err := c.selectedAccount()
	if err != nil {
		return nil, err
	}

	raw, status, err := c.do(ctx, http.MethodGet, "/trade/accounts/"+accountID+"/ordersHistory", nil, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &broker.AuthError{Op: "get history", Err: fmt.Errorf("status %d", status)}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get history: status %d: %s", status, raw)
	}

	var body struct {
		History []apiHistoryRow `json:"history"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	trades := make([]broker.ClosedTrade, 0, len(body.History))
	for _, h := range body.History {
		trades = append(trades, broker.ClosedTrade{
			PositionID: h.PositionID.String(),
			Symbol:     h.Symbol,
			Side:       h.Side,
			Quantity:   h.Qty,
			OpenPrice:  h.OpenPrice,
			ClosePrice: h.ClosePrice,
			Profit:     h.Profit,
			Swap:       h.Swap,
			Commission: h.Commission,
			ClosedAt:   time.UnixMilli(h.ClosedAt).UTC(),
		})
	}
	return trades, nil
}

// ResolveInstrument maps a ticker to the broker's tradable instrument
// id, hitting the instrument list once and caching the result for the
// session's lifetime. Instrument rows arrive either as objects or as
// [id, name] pairs depending on the broker backend version.
func (c *Client) ResolveInstrument(ctx context.Context, symbol string) (int64, error) {
	upper := strings.ToUpper(symbol)

	c.mu.Lock()
	if id, ok := c.instruments[upper]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	raw, status, err := c.do(ctx, http.MethodGet, "/trade/instruments", nil, true)
	if err != nil {
		return 0, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return 0, &broker.AuthError{Op: "list instruments", Err: fmt.Errorf("status %d", status)}
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("list instruments: status %d: %s", status, raw)
	}

	var body struct {
		Instruments []json.RawMessage `json:"instruments"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return 0, fmt.Errorf("decode instruments: %w", err)
	}

	c.mu.Lock()
	for _, row := range body.Instruments {
		var obj struct {
			TradableInstrumentID int64  `json:"tradableInstrumentId"`
			Name                 string `json:"name"`
		}
		if err := json.Unmarshal(row, &obj); err == nil && obj.Name != "" {
			c.instruments[strings.ToUpper(obj.Name)] = obj.TradableInstrumentID
			continue
		}

		var pair []json.RawMessage
		if err := json.Unmarshal(row, &pair); err == nil && len(pair) > 1 {
			var instID int64
			var name string
			if json.Unmarshal(pair[0], &instID) == nil && json.Unmarshal(pair[1], &name) == nil {
				c.instruments[strings.ToUpper(name)] = instID
			}
		}
	}
	instID, ok := c.instruments[upper]
	c.mu.Unlock()

	if !ok {
		return 0, &broker.UnknownInstrumentError{Symbol: symbol}
	}
	return instID, nil
}

// PlaceOrder submits a market order with optional SL/TP. Any non-2xx
// answer is a RejectedError; it is never folded into a success.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	if _, err := c.selectedAccount(); err != nil {
		return broker.OrderFill{}, err
	}

	payload := map[string]any{
		"tradableInstrumentId": req.InstrumentID,
		"type":                 "market",
		"side":                 string(req.Side),
		"qty":                  req.Quantity,
		"validity":             "GTC",
	}
	if req.StopLoss > 0 {
		payload["stopLoss"] = req.StopLoss
	}
	if req.TakeProfit > 0 {
		payload["takeProfit"] = req.TakeProfit
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/trade/orders", payload, true)
	if err != nil {
		return broker.OrderFill{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return broker.OrderFill{}, &broker.AuthError{Op: "place order", Err: fmt.Errorf("status %d", status)}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return broker.OrderFill{}, &broker.RejectedError{Status: status, Body: string(raw)}
	}

	var body struct {
		OrderID json.Number `json:"orderId"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return broker.OrderFill{}, fmt.Errorf("decode order response: %w", err)
	}

	return broker.OrderFill{OrderID: body.OrderID.String(), Raw: raw}, nil
}
