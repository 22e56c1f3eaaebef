package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
)

const DefaultLeadAPIPath = "/services/apexrest/lead/createlead"

// Client posts leads to the Apex REST endpoint of the token's instance.
type Client struct {
	leadAPIPath string
	http        *http.Client
}

func NewClient(leadAPIPath string, httpClient *http.Client) *Client {
	if leadAPIPath == "" {
		leadAPIPath = DefaultLeadAPIPath
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{leadAPIPath: leadAPIPath, http: httpClient}
}

// DeliverLead never fails on a non-2xx answer; that is returned as the outcome. Only
// network failures and unreadable responses come back as *entity.TransportError.
func (c *Client) DeliverLead(ctx context.Context, token entity.AccessToken, lead entity.LeadRecord) (entity.DeliveryOutcome, error) {
	payload, err := json.Marshal(lead)
	if err != nil {
		return entity.DeliveryOutcome{}, fmt.Errorf("marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, token.InstanceURL+c.leadAPIPath, bytes.NewReader(payload))
	if err != nil {
		return entity.DeliveryOutcome{}, &entity.TransportError{Err: err}
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return entity.DeliveryOutcome{}, &entity.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.DeliveryOutcome{}, &entity.TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	outcome := entity.DeliveryOutcome{StatusCode: resp.StatusCode, ResponseBody: string(body)}
	if !outcome.Succeeded() {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   snippet(outcome.ResponseBody),
		}).Warn("salesforce rejected lead")
	}
	return outcome, nil
}

func (c *Client) setHeaders(req *http.Request, token entity.AccessToken) {
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "LeadRelay/1.0")
}
