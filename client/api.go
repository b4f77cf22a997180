package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"consult-service/gate"
	"consult-service/internal/models"
)

// ConsultationDetail is the session descriptor served per appointment.
type ConsultationDetail struct {
	AppointmentID int                        `json:"appointment_id"`
	RoomID        string                     `json:"room_id"`
	Method        *models.ConsultationMethod `json:"method"`
	Decision      gate.Decision              `json:"decision"`
	Patient       models.Participant         `json:"patient"`
	Optometrist   models.Participant         `json:"optometrist"`
}

// API is the REST surface the client core consumes. APIClient is the
// production implementation.
type API interface {
	Consultation(ctx context.Context, appointmentID int) (ConsultationDetail, error)
	RoomHistory(ctx context.Context, roomID string) ([]models.Message, error)
	Payment(ctx context.Context, appointmentID int) (models.Payment, error)
	SubmitProof(ctx context.Context, appointmentID int, proofURL string) (models.Payment, error)
	CompleteAppointment(ctx context.Context, appointmentID int) error
}

// APIClient calls the consultation service over HTTP. Every call carries
// the bearer token; a 401 anywhere invalidates the cached token and
// triggers the re-authentication hook.
type APIClient struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	token string

	onAuthExpired func()
}

// NewAPIClient constructs an APIClient. onAuthExpired may be nil.
func NewAPIClient(baseURL, token string, onAuthExpired func()) *APIClient {
	return &APIClient{
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
		token:         token,
		onAuthExpired: onAuthExpired,
	}
}

// SetToken installs a fresh bearer token after re-authentication.
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Consultation fetches the session descriptor for an appointment.
func (c *APIClient) Consultation(ctx context.Context, appointmentID int) (ConsultationDetail, error) {
	var detail ConsultationDetail
	path := fmt.Sprintf("/appointments/%d/consultation", appointmentID)
	err := c.get(ctx, path, &detail)
	if isNotFound(err) {
		return ConsultationDetail{}, &RoomUnavailableError{AppointmentID: appointmentID}
	}
	return detail, err
}

// RoomHistory fetches the full ordered history for a room, once per room
// open.
func (c *APIClient) RoomHistory(ctx context.Context, roomID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.get(ctx, "/rooms/"+roomID+"/messages", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Payment fetches the current payment state for an appointment.
func (c *APIClient) Payment(ctx context.Context, appointmentID int) (models.Payment, error) {
	var pay models.Payment
	err := c.get(ctx, fmt.Sprintf("/appointments/%d/payment", appointmentID), &pay)
	return pay, err
}

// CreateInvoice opens an invoice for the appointment's payment.
func (c *APIClient) CreateInvoice(ctx context.Context, appointmentID int) (models.Payment, error) {
	var resp struct {
		Payment models.Payment `json:"payment"`
	}
	path := fmt.Sprintf("/appointments/%d/payment/invoice", appointmentID)
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return models.Payment{}, err
	}
	return resp.Payment, nil
}

// SubmitProof uploads a manual bank-transfer proof reference.
func (c *APIClient) SubmitProof(ctx context.Context, appointmentID int, proofURL string) (models.Payment, error) {
	var pay models.Payment
	path := fmt.Sprintf("/appointments/%d/payment/proof", appointmentID)
	err := c.post(ctx, path, map[string]string{"proof_url": proofURL}, &pay)
	return pay, err
}

// CompleteAppointment ends the consultation (optometrist only).
func (c *APIClient) CompleteAppointment(ctx context.Context, appointmentID int) error {
	return c.post(ctx, fmt.Sprintf("/appointments/%d/complete", appointmentID), nil, nil)
}

func (c *APIClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *APIClient) post(ctx context.Context, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

type httpStatusError struct {
	status int
	path   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.status, e.path)
}

func isNotFound(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.status == http.StatusNotFound
}

func (c *APIClient) do(req *http.Request, out interface{}) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &ConnectionError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if c.onAuthExpired != nil {
			c.onAuthExpired()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpStatusError{status: resp.StatusCode, path: req.URL.Path}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
