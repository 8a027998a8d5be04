// Package stripeward is the HTTP adapter for the card processor. All amounts
// cross the wire in minor units; ledger decimals are converted at this edge.
package stripeward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stipendly/payday_backend/internal/core/domain"
	"github.com/stipendly/payday_backend/internal/core/ports/gateways"
	"github.com/stipendly/payday_backend/internal/utils/billing"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ gateways.CardProcessor = (*Client)(nil)

type holdPayload struct {
	HoldID        string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	Voided        bool   `json:"is_void"`
	CaptureRef    string `json:"debit_href"`
	Meta          struct {
		State string `json:"state"`
	} `json:"meta"`
}

func (p holdPayload) toDomain() domain.CardHold {
	return domain.CardHold{
		HoldID:        p.HoldID,
		ParticipantID: p.ParticipantID,
		Amount:        p.Amount,
		State:         domain.HoldState(p.Meta.State),
		Status:        p.Status,
		FailureReason: p.FailureReason,
		Voided:        p.Voided,
		CaptureRef:    p.CaptureRef,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateHold reserves amount against the participant's card. The new hold is
// tagged state=new so a crashed run can find it again.
func (c *Client) CreateHold(ctx context.Context, participantID string, amount decimal.Decimal) (*domain.CardHold, error) {
	body := map[string]any{
		"participant_id": participantID,
		"amount":         billing.MinorUnits(amount),
		"meta":           map[string]string{"state": string(domain.HoldNew)},
	}
	var payload holdPayload
	if err := c.do(ctx, http.MethodPost, "/v1/holds", body, &payload); err != nil {
		return nil, err
	}
	hold := payload.toDomain()
	return &hold, nil
}

// CaptureHold converts up to amount of the reserved hold into a charge and
// retags it captured.
func (c *Client) CaptureHold(ctx context.Context, hold domain.CardHold, amount decimal.Decimal) error {
	body := map[string]any{
		"amount": billing.MinorUnits(amount),
		"meta":   map[string]string{"state": string(domain.HoldCaptured)},
	}
	path := fmt.Sprintf("/v1/holds/%s/capture", url.PathEscape(hold.HoldID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// CancelHold voids the hold and retags it cancelled.
func (c *Client) CancelHold(ctx context.Context, hold domain.CardHold) error {
	body := map[string]any{
		"meta": map[string]string{"state": string(domain.HoldCancelled)},
	}
	path := fmt.Sprintf("/v1/holds/%s/void", url.PathEscape(hold.HoldID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// SetHoldState corrects the metadata state tag on a processor-side hold.
func (c *Client) SetHoldState(ctx context.Context, hold domain.CardHold, state domain.HoldState) error {
	body := map[string]any{
		"meta": map[string]string{"state": string(state)},
	}
	path := fmt.Sprintf("/v1/holds/%s", url.PathEscape(hold.HoldID))
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// QueryHolds lists the holds carrying our metadata tag in the given state.
func (c *Client) QueryHolds(ctx context.Context, state domain.HoldState) ([]domain.CardHold, error) {
	path := "/v1/holds?meta.state=" + url.QueryEscape(string(state))
	var payload struct {
		Items []holdPayload `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	holds := make([]domain.CardHold, 0, len(payload.Items))
	for _, item := range payload.Items {
		holds = append(holds, item.toDomain())
	}
	return holds, nil
}

// CreditAccount pays amount out to the participant's verified payout route.
func (c *Client) CreditAccount(ctx context.Context, participantID string, amount decimal.Decimal) error {
	body := map[string]any{
		"participant_id": participantID,
		"amount":         billing.MinorUnits(amount),
	}
	return c.do(ctx, http.MethodPost, "/v1/credits", body, nil)
}

// do issues one authenticated JSON request. 4xx responses that carry a
// processor error body come back as *gateways.ProcessorError; everything else
// unexpected is an ordinary error.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode processor request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var ep errorPayload
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ep); decodeErr == nil && ep.Error.Code != "" {
			return &gateways.ProcessorError{Code: ep.Error.Code, Message: ep.Error.Message}
		}
		return fmt.Errorf("processor returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode processor response: %w", err)
		}
	}
	return nil
}
