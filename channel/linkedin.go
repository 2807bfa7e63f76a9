package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"leadpilot/models"
)

// LinkedInConfig points at the social automation gateway that fronts the
// actual network.
type LinkedInConfig struct {
	BaseURL  string
	APIToken string
}

// LinkedInProvider delivers direct messages through the gateway's HTTP API.
type LinkedInProvider struct {
	cfg    LinkedInConfig
	client *fasthttp.Client
	logger *logrus.Entry
}

func NewLinkedInProvider(cfg LinkedInConfig, logger *logrus.Entry) *LinkedInProvider {
	return &LinkedInProvider{
		cfg: cfg,
		client: &fasthttp.Client{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (p *LinkedInProvider) Name() string { return models.ChannelLinkedIn }

type linkedInSendPayload struct {
	Handle         string `json:"handle"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key"`
}

type linkedInSendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (p *LinkedInProvider) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	payload, err := json.Marshal(linkedInSendPayload{
		Handle:         req.Recipient,
		Message:        req.Body,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return SendResult{}, err
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(p.cfg.BaseURL + "/v1/messages")
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)
	httpReq.SetBody(payload)

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := p.client.DoDeadline(httpReq, httpResp, deadline); err != nil {
		return SendResult{}, fmt.Errorf("%w: linkedin send: %v", ErrTransient, err)
	}

	var body linkedInSendResponse
	_ = json.Unmarshal(httpResp.Body(), &body)

	status := httpResp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return SendResult{
			Success:           true,
			Status:            models.AttemptStatusSent,
			ProviderMessageID: body.MessageID,
		}, nil
	case status == fasthttp.StatusTooManyRequests || status >= 500:
		return SendResult{}, fmt.Errorf("%w: linkedin gateway status %d", ErrTransient, status)
	case status == fasthttp.StatusGone || status == fasthttp.StatusForbidden:
		// Recipient closed their inbox or blocked outreach.
		return SendResult{
			Status:       models.AttemptStatusBounced,
			ErrorMessage: body.Error,
			Permanent:    true,
		}, nil
	default:
		return SendResult{
			Status:       models.AttemptStatusFailed,
			ErrorMessage: fmt.Sprintf("gateway status %d: %s", status, body.Error),
		}, nil
	}
}
