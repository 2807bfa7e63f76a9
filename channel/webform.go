package channel

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"leadpilot/models"
)

// WebFormProvider submits the message through the contact form at the
// lead's form URL. The recipient field carries the form URL.
type WebFormProvider struct {
	client    *fasthttp.Client
	fromEmail string
	fromName  string
	logger    *logrus.Entry
}

func NewWebFormProvider(fromEmail, fromName string, logger *logrus.Entry) *WebFormProvider {
	return &WebFormProvider{
		client: &fasthttp.Client{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

func (p *WebFormProvider) Name() string { return models.ChannelWebForm }

func (p *WebFormProvider) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if req.Recipient == "" {
		return SendResult{
			Status:       models.AttemptStatusFailed,
			ErrorMessage: "lead has no form URL",
			Permanent:    true,
		}, nil
	}

	form := url.Values{}
	form.Set("name", p.fromName)
	form.Set("email", p.fromEmail)
	form.Set("subject", req.Subject)
	form.Set("message", req.Body)

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(req.Recipient)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/x-www-form-urlencoded")
	httpReq.SetBodyString(form.Encode())

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := p.client.DoDeadline(httpReq, httpResp, deadline); err != nil {
		return SendResult{}, fmt.Errorf("%w: form submit: %v", ErrTransient, err)
	}

	status := httpResp.StatusCode()
	switch {
	case status >= 200 && status < 400:
		return SendResult{Success: true, Status: models.AttemptStatusSent}, nil
	case status == fasthttp.StatusNotFound || status == fasthttp.StatusGone:
		// Form no longer exists; pointless to retry this lead on this channel.
		return SendResult{
			Status:       models.AttemptStatusBounced,
			ErrorMessage: fmt.Sprintf("form returned %d", status),
			Permanent:    true,
		}, nil
	case status >= 500 || status == fasthttp.StatusTooManyRequests:
		return SendResult{}, fmt.Errorf("%w: form returned %d", ErrTransient, status)
	default:
		return SendResult{
			Status:       models.AttemptStatusFailed,
			ErrorMessage: fmt.Sprintf("form returned %d", status),
		}, nil
	}
}
