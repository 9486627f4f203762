package affirm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/affirm-gateway/pkg/config"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	chargesPath = "/api/v2/charges"

	maxResponseBytes = 1 << 20
)

var (
	errKeysRequired   = errors.New("affirm public and private keys are required")
	errLoggerRequired = errors.New("affirm logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://sandbox.affirm.com",
	productionEnv: "https://api.affirm.com",
}

// Client exposes the Affirm charge API with centralized auth, logging, and
// error mapping. All amounts are integer cents.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	publicKey   string
	privateKey  string
	environment string
	logger      *logger.Logger
}

// NewClient initializes the Affirm wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.AffirmConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	publicKey := strings.TrimSpace(cfg.PublicKey)
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if publicKey == "" || privateKey == "" {
		return nil, errKeysRequired
	}

	env := productionEnv
	if cfg.Sandbox {
		env = sandboxEnv
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURLs[env],
		publicKey:   publicKey,
		privateKey:  privateKey,
		environment: env,
		logger:      logg,
	}

	logg.Info(ctx, "affirm client initialized")
	return c, nil
}

// Environment reports whether the client targets sandbox or production.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// DashboardChargeURL returns the merchant-dashboard link for a charge.
func (c *Client) DashboardChargeURL(chargeID string) string {
	host := "https://www.affirm.com"
	if c != nil && c.environment == sandboxEnv {
		host = "https://sandbox.affirm.com"
	}
	return fmt.Sprintf("%s/dashboard/#/details/%s", host, chargeID)
}

// ExchangeToken trades a checkout token for a charge, which opens the
// authorization hold. The returned charge is validated against the local
// order reference; on an order mismatch the parsed charge is returned
// alongside the error so the caller can void the dangling authorization.
func (c *Client) ExchangeToken(ctx context.Context, checkoutToken string, order OrderRef) (*Charge, error) {
	token := strings.TrimSpace(checkoutToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout token is required")
	}

	c.log(ctx, "request", "exchange_token", map[string]any{
		"order_id": order.ID,
	})

	status, body, err := c.do(ctx, http.MethodPost, chargesPath, exchangeRequest{CheckoutToken: token})
	if err != nil {
		c.log(ctx, "error", "exchange_token", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "affirm exchange token failed")
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, pkgerrors.New(pkgerrors.CodeAuthorizationFailed,
			fmt.Sprintf("affirm rejected checkout token with status %d", status))
	}
	if status < 200 || status >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeUnexpectedResponse,
			fmt.Sprintf("affirm exchange token returned status %d", status))
	}

	var charge Charge
	if err := json.Unmarshal(body, &charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedResponse, err, "decoding exchange response")
	}
	if charge.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnexpectedResponse, "exchange response missing charge id")
	}

	c.log(ctx, "response", "exchange_token", map[string]any{
		"charge_id": charge.ID,
		"status":    charge.Status,
		"amount":    charge.AmountCents,
	})

	if !charge.MatchesOrder(order) {
		return &charge, pkgerrors.New(pkgerrors.CodeOrderMismatch,
			fmt.Sprintf("charge %s metadata does not reference order %s", charge.ID, order.ID))
	}
	return &charge, nil
}

// ReadCharge fetches the current provider-side state of a charge.
func (c *Client) ReadCharge(ctx context.Context, chargeID string) (*Charge, error) {
	id := strings.TrimSpace(chargeID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	c.log(ctx, "request", "read_charge", map[string]any{"charge_id": id})

	status, body, err := c.do(ctx, http.MethodGet, chargesPath+"/"+id, nil)
	if err != nil {
		c.log(ctx, "error", "read_charge", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "affirm read charge failed")
	}
	if status < 200 || status >= 300 {
		return nil, pkgerrors.New(domainCodeForStatus(status),
			fmt.Sprintf("affirm read charge returned status %d", status))
	}

	var charge Charge
	if err := json.Unmarshal(body, &charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedResponse, err, "decoding charge")
	}
	if charge.ID == "" || charge.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("charge %s not found", id))
	}

	c.log(ctx, "response", "read_charge", map[string]any{
		"charge_id": charge.ID,
		"status":    charge.Status,
	})
	return &charge, nil
}

// Capture settles an authorized charge for its full amount. The merchant
// order id rides along in the capture body.
func (c *Client) Capture(ctx context.Context, chargeID, orderID string) (*CaptureResult, error) {
	id := strings.TrimSpace(chargeID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	c.log(ctx, "request", "capture_charge", map[string]any{
		"charge_id": id,
		"order_id":  orderID,
	})

	status, body, err := c.do(ctx, http.MethodPost, chargesPath+"/"+id+"/capture", captureRequest{OrderID: orderID})
	if err != nil {
		c.log(ctx, "error", "capture_charge", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeCaptureFailed, err, "affirm capture failed")
	}
	if status != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeCaptureFailed,
			fmt.Sprintf("affirm capture returned status %d", status))
	}
	if len(body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCaptureFailed, "affirm capture returned an empty body")
	}

	var result CaptureResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCaptureFailed, err, "decoding capture response")
	}
	if result.ID == "" {
		result.ID = id
	}

	c.log(ctx, "response", "capture_charge", map[string]any{
		"charge_id": id,
		"amount":    result.AmountCents,
		"fee":       result.FeeCents,
	})
	return &result, nil
}

// Void cancels an authorized charge. The charge is read first and the void
// is only issued when the provider still reports it as authorized.
func (c *Client) Void(ctx context.Context, chargeID string) (*VoidResult, error) {
	charge, err := c.ReadCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if !charge.IsAuthorized() {
		return nil, pkgerrors.New(pkgerrors.CodeVoidFailed,
			fmt.Sprintf("charge %s is %s, only authorized charges can be voided", charge.ID, charge.Status))
	}

	c.log(ctx, "request", "void_charge", map[string]any{"charge_id": charge.ID})

	status, body, err := c.do(ctx, http.MethodPost, chargesPath+"/"+charge.ID+"/void", struct{}{})
	if err != nil {
		c.log(ctx, "error", "void_charge", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeVoidFailed, err, "affirm void failed")
	}
	if status < 200 || status >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeVoidFailed,
			fmt.Sprintf("affirm void returned status %d", status))
	}

	var result VoidResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeVoidFailed, err, "decoding void response")
		}
	}
	if result.ID == "" {
		result.ID = charge.ID
	}

	c.log(ctx, "response", "void_charge", map[string]any{"charge_id": result.ID})
	return &result, nil
}

// Refund returns amountCents of a captured charge to the shopper.
func (c *Client) Refund(ctx context.Context, chargeID string, amountCents int) (*RefundResult, error) {
	id := strings.TrimSpace(chargeID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	c.log(ctx, "request", "refund_charge", map[string]any{
		"charge_id": id,
		"amount":    amountCents,
	})

	status, body, err := c.do(ctx, http.MethodPost, chargesPath+"/"+id+"/refund", refundRequest{Amount: amountCents})
	if err != nil {
		c.log(ctx, "error", "refund_charge", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeRefundFailed, err, "affirm refund failed")
	}
	if status != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeRefundFailed,
			fmt.Sprintf("affirm refund returned status %d", status))
	}
	if len(body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeRefundFailed, "affirm refund returned an empty body")
	}

	var result RefundResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRefundFailed, err, "decoding refund response")
	}
	if result.ID == "" {
		result.ID = id
	}

	c.log(ctx, "response", "refund_charge", map[string]any{
		"charge_id":    id,
		"amount":       result.AmountCents,
		"fee_refunded": result.FeeRefundedCents,
	})
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.publicKey, c.privateKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("affirm %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("affirm %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "key", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
