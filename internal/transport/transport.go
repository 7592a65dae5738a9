// Package transport is the outbound/inbound message boundary. The
// session layer talks to an abstract Transport; the Telegram adapter
// lives alongside it.
package transport

import (
	"context"
	"strings"
)

// MaxMessageLen is the hard cap on a single outbound message. Longer
// compositions are split before sending.
const MaxMessageLen = 4096

// Incoming is one message received from a requester.
type Incoming struct {
	RequesterID int64
	Text        string
	Addressed   bool // whether the message was directed at the bot
}

// Outgoing is one message to a requester. Buttons are quick-reply
// rows; Attachments are media references understood by the adapter.
type Outgoing struct {
	Text         string
	Attachments  []string
	Buttons      [][]string
	ClearButtons bool
}

type Transport interface {
	// Send delivers a message, splitting it when it exceeds MaxMessageLen.
	Send(ctx context.Context, requesterID int64, out Outgoing) error

	// Receive blocks until the next inbound message arrives.
	Receive(ctx context.Context) (Incoming, error)
}

// SplitText splits text into chunks of at most limit bytes, preferring
// line boundaries so numbered listings stay readable.
func SplitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit+1], '\n')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
