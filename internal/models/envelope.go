// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package models

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Push message types carried on the wire.
const (
	MessageTypeItem      = "item"
	MessageTypeHeartbeat = "heartbeat"
)

// ErrUnknownMessageType marks a payload whose type tag is not recognised.
// Such payloads are logged and dropped by the feed manager; they never
// affect connection state.
var ErrUnknownMessageType = errors.New("unknown push message type")

// Envelope is the tagged wrapper around every push transport payload.
//
// Wire format:
//
//	{"type": "item", "data": {...}, "timestamp": "..."}
//	{"type": "heartbeat", "timestamp": "..."}
//
// Data is left raw so heartbeats avoid an item decode entirely.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeEnvelope parses a raw transport payload into an Envelope.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, err
	}
	switch env.Type {
	case MessageTypeItem, MessageTypeHeartbeat:
		return env, nil
	default:
		return Envelope{}, ErrUnknownMessageType
	}
}

// Item decodes the envelope's data as a QueueItem.
// Only valid for MessageTypeItem envelopes.
func (e Envelope) Item() (QueueItem, error) {
	var item QueueItem
	if err := json.Unmarshal(e.Data, &item); err != nil {
		return QueueItem{}, err
	}
	if item.ID == "" {
		return QueueItem{}, errors.New("item payload missing id")
	}
	return item, nil
}
