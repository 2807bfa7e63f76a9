package worker

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/channel"
	"leadpilot/engine"
	"leadpilot/models"
	"leadpilot/store"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type stubFetcher struct {
	provider string
	channel  string
	replies  []channel.InboundReply
}

func (f *stubFetcher) Provider() string { return f.provider }
func (f *stubFetcher) Channel() string  { return f.channel }
func (f *stubFetcher) FetchUnread(ctx context.Context) ([]channel.InboundReply, error) {
	return f.replies, nil
}

// recordingStore captures the inbound messages persisted during a poll so
// tests can assert on the stored message, not just its side effects.
type recordingStore struct {
	store.Store
	created []*models.InboundMessage
}

func (r *recordingStore) CreateInbound(ctx context.Context, msg *models.InboundMessage) error {
	err := r.Store.CreateInbound(ctx, msg)
	if err == nil {
		r.created = append(r.created, msg)
	}
	return err
}

func newTestReplyWorker(st store.Store, fetchers ...channel.ReplyFetcher) *ReplyWorker {
	followUp := engine.NewFollowUpEngine(st, engine.NewReplyClassifier(), testLogger())
	return NewReplyWorker(st, followUp, fetchers, time.Minute, testLogger())
}

func emailReply(from, body string) channel.InboundReply {
	return channel.InboundReply{
		Provider:   "imap",
		MessageID:  "m-" + from,
		FromEmail:  from,
		Subject:    "Re: intro",
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func TestPollCorrelatesReplyToLatestSentAttempt(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &recordingStore{Store: mem}
	ctx := context.Background()

	lead := &models.Lead{CampaignID: 1, Email: "ana@acme.com", Status: models.LeadStatusRouted}
	require.NoError(t, mem.CreateLead(ctx, lead))

	sent := &models.OutreachAttempt{
		CampaignID: 1, LeadID: lead.ID, Channel: models.ChannelEmail,
		StepNumber: 1, IdempotencyKey: "k1", Status: models.AttemptStatusSent,
	}
	require.NoError(t, mem.CreateAttempt(ctx, sent))
	delivered := &models.OutreachAttempt{
		CampaignID: 1, LeadID: lead.ID, Channel: models.ChannelEmail,
		StepNumber: 2, IdempotencyKey: "k2", Status: models.AttemptStatusDelivered,
	}
	require.NoError(t, mem.CreateAttempt(ctx, delivered))
	skipped := &models.OutreachAttempt{
		CampaignID: 1, LeadID: lead.ID, Channel: models.ChannelEmail,
		StepNumber: 3, IdempotencyKey: "k3", Status: models.AttemptStatusSkipped,
	}
	require.NoError(t, mem.CreateAttempt(ctx, skipped))

	fetcher := &stubFetcher{provider: "imap", channel: models.ChannelEmail,
		replies: []channel.InboundReply{emailReply("ana@acme.com", "Sounds good, let's talk next week.")}}
	rw := newTestReplyWorker(st, fetcher)
	rw.poll(ctx)

	require.Len(t, st.created, 1)
	msg := st.created[0]
	require.NotNil(t, msg.AttemptID, "reply must link back to the message it answers")
	assert.Equal(t, delivered.ID, *msg.AttemptID, "latest delivered attempt wins over earlier and skipped ones")
	assert.True(t, msg.Processed)
	assert.Equal(t, models.ReplyPositive, msg.Classification)

	got, err := mem.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusRepliedPositive, got.Status)
}

func TestPollLeavesAttemptLinkEmptyWithoutSends(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &recordingStore{Store: mem}
	ctx := context.Background()

	lead := &models.Lead{CampaignID: 1, Email: "bo@acme.com", Status: models.LeadStatusRouted}
	require.NoError(t, mem.CreateLead(ctx, lead))
	// A skipped attempt never reached the lead, so there is nothing to
	// correlate the reply with.
	require.NoError(t, mem.CreateAttempt(ctx, &models.OutreachAttempt{
		CampaignID: 1, LeadID: lead.ID, Channel: models.ChannelEmail,
		StepNumber: 1, IdempotencyKey: "k1", Status: models.AttemptStatusSkipped,
	}))

	fetcher := &stubFetcher{provider: "imap", channel: models.ChannelEmail,
		replies: []channel.InboundReply{emailReply("bo@acme.com", "Who is this?")}}
	rw := newTestReplyWorker(st, fetcher)
	rw.poll(ctx)

	require.Len(t, st.created, 1)
	assert.Nil(t, st.created[0].AttemptID)
}

func TestPollDropsUnknownSendersAndDuplicates(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &recordingStore{Store: mem}
	ctx := context.Background()

	lead := &models.Lead{CampaignID: 1, Email: "cle@acme.com", Status: models.LeadStatusRouted}
	require.NoError(t, mem.CreateLead(ctx, lead))

	fetcher := &stubFetcher{provider: "imap", channel: models.ChannelEmail,
		replies: []channel.InboundReply{
			emailReply("stranger@nowhere.com", "hello"),
			emailReply("cle@acme.com", "Tell me more about pricing."),
		}}
	rw := newTestReplyWorker(st, fetcher)
	rw.poll(ctx)
	// The second poll re-fetches the same unread message.
	rw.poll(ctx)

	require.Len(t, st.created, 1)
	assert.Equal(t, lead.ID, st.created[0].LeadID)
}

func TestPollReplaysUnprocessedBacklog(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()

	lead := &models.Lead{CampaignID: 1, Email: "dia@acme.com", Status: models.LeadStatusRouted}
	require.NoError(t, mem.CreateLead(ctx, lead))

	// A reply that was stored on an earlier poll but whose transition
	// never got applied stays unprocessed and must be picked up again.
	stalled := &models.InboundMessage{
		CampaignID:        1,
		LeadID:            lead.ID,
		Channel:           models.ChannelEmail,
		Provider:          "imap",
		ProviderMessageID: "m-stalled",
		Classification:    models.ReplyNegative,
		Body:              "not interested",
		ReceivedAt:        time.Now(),
	}
	require.NoError(t, mem.CreateInbound(ctx, stalled))

	rw := newTestReplyWorker(mem)
	rw.poll(ctx)

	got, err := mem.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusLost, got.Status)

	backlog, err := mem.ListUnprocessedInbound(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, backlog)
}
