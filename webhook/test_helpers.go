package webhook

import (
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/stretchr/testify/mock"
)

// MatchWebhook creates a custom matcher for webhook arguments in mocks
func MatchWebhook(matcher func(Webhook) bool) interface{} {
	return mock.MatchedBy(matcher)
}

// MatchQueueItem creates a custom matcher for queue item arguments in mocks
func MatchQueueItem(matcher func(QueueItem) bool) interface{} {
	return mock.MatchedBy(matcher)
}

// MatchPayload creates a custom matcher for payload arguments in mocks
func MatchPayload(matcher func(payload.Payload) bool) interface{} {
	return mock.MatchedBy(matcher)
}
