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

// LinkedInReplyFetcher polls the gateway's unread-message feed.
type LinkedInReplyFetcher struct {
	cfg    LinkedInConfig
	client *fasthttp.Client
	logger *logrus.Entry
}

func NewLinkedInReplyFetcher(cfg LinkedInConfig, logger *logrus.Entry) *LinkedInReplyFetcher {
	return &LinkedInReplyFetcher{
		cfg: cfg,
		client: &fasthttp.Client{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (f *LinkedInReplyFetcher) Provider() string { return "linkedin" }

func (f *LinkedInReplyFetcher) Channel() string { return models.ChannelLinkedIn }

type linkedInUnreadMessage struct {
	MessageID  string    `json:"message_id"`
	FromEmail  string    `json:"from_email"`
	FromHandle string    `json:"from_handle"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

func (f *LinkedInReplyFetcher) FetchUnread(ctx context.Context) ([]InboundReply, error) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(f.cfg.BaseURL + "/v1/messages/unread")
	httpReq.Header.SetMethod(fasthttp.MethodGet)
	httpReq.Header.Set("Authorization", "Bearer "+f.cfg.APIToken)

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := f.client.DoDeadline(httpReq, httpResp, deadline); err != nil {
		return nil, fmt.Errorf("linkedin unread fetch: %w", err)
	}
	if httpResp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("linkedin unread fetch: gateway status %d", httpResp.StatusCode())
	}

	var unread []linkedInUnreadMessage
	if err := json.Unmarshal(httpResp.Body(), &unread); err != nil {
		return nil, fmt.Errorf("linkedin unread fetch: decode: %w", err)
	}

	replies := make([]InboundReply, 0, len(unread))
	for _, msg := range unread {
		replies = append(replies, InboundReply{
			Provider:   f.Provider(),
			MessageID:  msg.MessageID,
			FromEmail:  msg.FromEmail,
			Subject:    "",
			Body:       msg.Text,
			ReceivedAt: msg.ReceivedAt,
		})
	}
	return replies, nil
}
