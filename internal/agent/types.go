// Package agent implements the client for a deployed Vertex AI Agent
// Engine and the init-once handle the relay reads it through.
package agent

import (
	"strings"
)

// Session is the remote session descriptor returned by create_session.
// Only the ID is used by the relay; the rest is kept for logging.
type Session struct {
	ID             string  `json:"id"`
	AppName        string  `json:"app_name"`
	UserID         string  `json:"user_id"`
	LastUpdateTime float64 `json:"last_update_time"`
}

// Part is a single content fragment inside a stream event.
type Part struct {
	Text string `json:"text"`
}

// Content groups the parts of one stream event.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// StreamEvent is one decoded element of a stream_query response.
type StreamEvent struct {
	Author       string  `json:"author"`
	InvocationID string  `json:"invocation_id"`
	Content      Content `json:"content"`
}

// Text concatenates the text of all parts in delivery order.
func (e StreamEvent) Text() string {
	var b strings.Builder
	for _, p := range e.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
