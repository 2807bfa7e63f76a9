package engine

import (
	"strings"

	"leadpilot/models"
)

// Classification pairs the category with a confidence value.
type Classification struct {
	Category   string
	Confidence float64
	Matched    string // the rule that fired, for observability
}

// classifierRule is one keyword bucket. Rules are evaluated in order;
// the first hit wins, so more specific buckets (bounce, unsubscribe)
// come before broader sentiment ones.
type classifierRule struct {
	category   string
	confidence float64
	keywords   []string
}

// ReplyClassifier categorizes inbound messages with rule-based keyword
// matching. No network calls; unknown text falls out as UNKNOWN and the
// follow-up engine treats that like NEUTRAL.
type ReplyClassifier struct {
	rules []classifierRule
}

func NewReplyClassifier() *ReplyClassifier {
	return &ReplyClassifier{rules: []classifierRule{
		{models.ReplyBounce, 0.95, []string{
			"mailer-daemon", "delivery status notification", "undeliverable",
			"delivery has failed", "address not found", "user unknown",
			"mailbox unavailable", "550 5.1.1",
		}},
		{models.ReplyUnsub, 0.95, []string{
			"unsubscribe", "remove me from", "take me off", "opt out",
			"stop emailing", "stop contacting", "do not contact me",
		}},
		{models.ReplyOOO, 0.90, []string{
			"out of office", "out of the office", "on vacation", "on leave",
			"annual leave", "parental leave", "back in the office",
		}},
		{models.ReplyAutoReply, 0.85, []string{
			"automatic reply", "auto-reply", "autoreply", "do not reply to this",
			"this inbox is not monitored", "thank you for your email",
		}},
		{models.ReplyNegative, 0.80, []string{
			"not interested", "no thanks", "no thank you", "not a fit",
			"not the right time", "no budget", "we already have",
			"already working with", "please stop", "not relevant",
		}},
		{models.ReplyPositive, 0.75, []string{
			"interested", "sounds good", "let's talk", "lets talk",
			"schedule a call", "book a call", "set up a call", "demo",
			"pricing", "tell me more", "send more info", "happy to chat",
			"works for me",
		}},
		{models.ReplyNeutral, 0.50, []string{
			"who is this", "how did you get", "can you clarify",
			"what is this about", "forwarded your note",
		}},
	}}
}

// Classify categorizes the message body (subject is considered too) and
// returns the category with confidence. Empty input is UNKNOWN.
func (c *ReplyClassifier) Classify(subject, body string) Classification {
	text := strings.ToLower(subject + "\n" + body)
	if strings.TrimSpace(text) == "" {
		return Classification{Category: models.ReplyUnknown, Confidence: 0}
	}

	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return Classification{
					Category:   rule.category,
					Confidence: rule.confidence,
					Matched:    kw,
				}
			}
		}
	}
	return Classification{Category: models.ReplyUnknown, Confidence: 0.2}
}
