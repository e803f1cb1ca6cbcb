package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oapi-codegen/runtime"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.chapa.co/v1"

	initializeTimeout = 30 * time.Second
	verifyTimeout     = 15 * time.Second
	maxResponseBytes  = 1 << 20
)

// ErrNotConfigured is returned when the secret key is missing.
var ErrNotConfigured = errors.New("payment processor secret key is not configured")

// Config holds processor credentials and the checkout defaults applied during normalization.
type Config struct {
	BaseURL        string
	SecretKey      string
	Currency       string
	DefaultCity    string
	DefaultState   string
	DefaultCountry string
	Title          string
	Description    string
}

// Client talks to the hosted-checkout processor over its REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient instantiates the processor client with sane defaults.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	if cfg.Currency == "" {
		cfg.Currency = "ETB"
	}
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Addis Ababa"
	}
	if cfg.DefaultState == "" {
		cfg.DefaultState = "Addis Ababa"
	}
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = "Ethiopia"
	}
	if cfg.Title == "" {
		cfg.Title = "Order Payment"
	}
	if cfg.Description == "" {
		cfg.Description = "Payment for order"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Configured reports whether a secret key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.SecretKey != ""
}

// InitializeParams are the raw checkout fields before normalization.
type InitializeParams struct {
	TransactionRef  string
	Amount          decimal.Decimal
	Currency        string
	Email           string
	FullName        string
	Phone           string
	DeliveryAddress string
	City            string
	State           string
	Country         string
	CallbackURL     string
	ReturnURL       string
}

// InitializeResponse is the processor envelope for a new checkout.
type InitializeResponse struct {
	Status  string `json:"status"`
	Message any    `json:"message"`
	Data    *struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// VerifyResponse is the processor envelope for a transaction lookup.
type VerifyResponse struct {
	Status  string          `json:"status"`
	Message any             `json:"message"`
	Data    *VerifyData     `json:"data"`
	Raw     json.RawMessage `json:"-"`
}

// VerifyData carries the transaction fields the engine consumes.
type VerifyData struct {
	Status    string           `json:"status"`
	TxRef     string           `json:"tx_ref"`
	Amount    *decimal.Decimal `json:"amount"`
	Currency  string           `json:"currency"`
	Charge    *decimal.Decimal `json:"charge"`
	Method    string           `json:"method"`
	Reference string           `json:"reference"`
}

// Initialize creates a hosted checkout and returns its URL.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	form := c.InitializeForm(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transaction/initialize", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	var resp InitializeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Kind: KindAPI, StatusCode: status, Message: "malformed initialize response", Err: err}
	}
	if status >= http.StatusBadRequest {
		return "", statusError(status, messageText(resp.Message))
	}
	if resp.Data == nil || strings.TrimSpace(resp.Data.CheckoutURL) == "" {
		return "", &Error{Kind: KindAPI, StatusCode: status, Message: firstNonEmpty(messageText(resp.Message), "checkout url missing from response")}
	}
	return resp.Data.CheckoutURL, nil
}

// Verify looks up a transaction. Declines come back as data, not errors.
func (c *Client) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, errors.New("transaction reference is required")
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	pathParam, err := runtime.StyleParamWithLocation("simple", false, "tx_ref", runtime.ParamLocationPath, txRef)
	if err != nil {
		return nil, fmt.Errorf("style tx_ref path parameter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/transaction/verify/"+pathParam, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	c.authorize(req)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var resp VerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: KindAPI, StatusCode: status, Message: "malformed verify response", Err: err}
	}
	resp.Raw = append(json.RawMessage(nil), body...)
	switch {
	case status == http.StatusOK:
		return &resp, nil
	case status == http.StatusBadRequest && strings.EqualFold(resp.Status, "failed"):
		return &resp, nil
	default:
		return nil, statusError(status, messageText(resp.Message))
	}
}

// InitializeForm applies the processor's field rules to the raw checkout input.
func (c *Client) InitializeForm(params InitializeParams) url.Values {
	city := orDefault(params.City, c.cfg.DefaultCity)
	state := orDefault(params.State, c.cfg.DefaultState)
	country := orDefault(params.Country, c.cfg.DefaultCountry)
	first, last := splitName(params.FullName)

	form := url.Values{}
	form.Set("amount", params.Amount.StringFixed(2))
	form.Set("currency", strings.ToUpper(firstNonEmpty(params.Currency, c.cfg.Currency)))
	form.Set("email", strings.ToLower(strings.TrimSpace(params.Email)))
	form.Set("first_name", first)
	form.Set("last_name", last)
	form.Set("tx_ref", strings.TrimSpace(params.TransactionRef))
	form.Set("delivery_address", c.normalizeAddress(params.DeliveryAddress))
	form.Set("city", city)
	form.Set("state", state)
	form.Set("country", country)
	if phone := strings.TrimSpace(params.Phone); phone != "" {
		form.Set("phone_number", phone)
	}
	if params.CallbackURL != "" {
		form.Set("callback_url", params.CallbackURL)
	}
	if params.ReturnURL != "" {
		form.Set("return_url", params.ReturnURL)
	}
	form.Set("customization[title]", truncate(sanitizeText(c.cfg.Title), 16))
	form.Set("customization[description]", truncate(sanitizeText(c.cfg.Description), 100))
	return form
}

const minAddressLength = 15

// normalizeAddress pads addresses the processor would reject as too short with the default district.
func (c *Client) normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return "Default delivery address, " + c.cfg.DefaultCity + ", " + c.cfg.DefaultCountry
	}
	if utf8.RuneCountInString(address) >= minAddressLength {
		return address
	}
	return address + " District, " + c.cfg.DefaultCity + ", " + c.cfg.DefaultCountry
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, transportError(err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, statusError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return body, resp.StatusCode, nil
}

func transportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "processor request timed out", Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Message: "processor request timed out", Err: err}
	default:
		return &Error{Kind: KindNetwork, Message: "unable to reach processor", Err: err}
	}
}

func statusError(status int, message string) error {
	kind := KindAPI
	switch status {
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	}
	return &Error{Kind: kind, StatusCode: status, Message: firstNonEmpty(message, http.StatusText(status))}
}

// messageText flattens the processor's message field, which is a string or a field map.
func messageText(message any) string {
	switch m := message.(type) {
	case string:
		return m
	case nil:
		return ""
	default:
		raw, err := json.Marshal(m)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func splitName(fullName string) (string, string) {
	parts := strings.Fields(truncate(fullName, 100))
	switch len(parts) {
	case 0:
		return "Customer", "User"
	case 1:
		return parts[0], "User"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func sanitizeText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncate keeps at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return fallback
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
