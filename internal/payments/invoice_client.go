package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"consult-service/internal/models"
)

// ErrUnauthorized is returned when the provider rejects our credentials.
var ErrUnauthorized = errors.New("invoice provider rejected credentials")

// Invoice is the external provider's view of a payment.
type Invoice struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	PayURL    string    `json:"payment_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaymentStatus maps the provider's status vocabulary onto ours.
func (i Invoice) PaymentStatus() models.PaymentStatus {
	switch i.Status {
	case "PAID", "SETTLED":
		return models.PaymentPaid
	case "EXPIRED":
		return models.PaymentExpired
	default:
		return models.PaymentUnpaid
	}
}

// InvoiceClient talks to the external invoicing provider.
type InvoiceClient interface {
	CreateInvoice(ctx context.Context, externalRef string, amount int64, deadline time.Time) (Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (Invoice, error)
}

// HTTPInvoiceClient is the production implementation.
type HTTPInvoiceClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPInvoiceClient constructs an HTTPInvoiceClient.
func NewHTTPInvoiceClient(baseURL, apiKey string) *HTTPInvoiceClient {
	return &HTTPInvoiceClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateInvoice opens an invoice with the provider.
func (c *HTTPInvoiceClient) CreateInvoice(ctx context.Context, externalRef string, amount int64, deadline time.Time) (Invoice, error) {
	body, err := json.Marshal(map[string]interface{}{
		"external_id": externalRef,
		"amount":      amount,
		"expires_at":  deadline.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Invoice{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/invoices", bytes.NewReader(body))
	if err != nil {
		return Invoice{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req)
}

// GetInvoice fetches the current invoice state.
func (c *HTTPInvoiceClient) GetInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/invoices/"+invoiceID, nil)
	if err != nil {
		return Invoice{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req)
}

func (c *HTTPInvoiceClient) do(req *http.Request) (Invoice, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoice provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return Invoice{}, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Invoice{}, fmt.Errorf("invoice provider: unexpected status %d", resp.StatusCode)
	}

	var inv Invoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return Invoice{}, fmt.Errorf("invoice provider: decode response: %w", err)
	}
	return inv, nil
}
