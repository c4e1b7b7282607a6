// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Conversation Status
// =============================================================================

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusDeleted  ConversationStatus = "deleted"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s ConversationStatus) bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// convValidate is the validator for conversation management requests.
// Initialized in init() with the custom status validator.
var convValidate *validator.Validate

func init() {
	convValidate = validator.New()
	_ = convValidate.RegisterValidation("convstatus", validateStatus)
}

// validateStatus accepts active and archived. Deletion goes through the
// DELETE endpoint, never through a status update.
func validateStatus(fl validator.FieldLevel) bool {
	switch ConversationStatus(fl.Field().String()) {
	case StatusActive, StatusArchived:
		return true
	}
	return false
}

// =============================================================================
// Conversation Management Requests
// =============================================================================

// CreateConversationRequest is the body for POST /conversations.
//
// Title is optional; when empty the store derives it from the first query.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty" validate:"omitempty,max=200"`
}

// Validate applies the struct tags.
func (r *CreateConversationRequest) Validate() error {
	if err := convValidate.Struct(r); err != nil {
		return WrapError(KindInvalidInput, "invalid conversation request", err)
	}
	return nil
}

// UpdateConversationRequest is the body for PUT /conversations/{id}.
//
// # Description
//
// Either field may be set independently. Status may only move between
// active and archived; soft deletion has its own endpoint so a stray
// update can never destroy a conversation.
type UpdateConversationRequest struct {
	Title  string `json:"title,omitempty" validate:"omitempty,max=200"`
	Status string `json:"status,omitempty" validate:"omitempty,convstatus"`
}

// Validate applies the struct tags and requires at least one field.
func (r *UpdateConversationRequest) Validate() error {
	if r.Title == "" && r.Status == "" {
		return NewError(KindInvalidInput, "update requires a title or a status")
	}
	if err := convValidate.Struct(r); err != nil {
		return WrapError(KindInvalidInput, "invalid conversation update", err)
	}
	return nil
}

// ListConversationsQuery carries the query parameters for GET /conversations.
type ListConversationsQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=active archived deleted"`
	Limit  int    `form:"limit" validate:"gte=0,lte=100"`
}

// Validate applies the struct tags and defaults the limit to 20.
func (q *ListConversationsQuery) Validate() error {
	if err := convValidate.Struct(q); err != nil {
		return WrapError(KindInvalidInput, "invalid list query", err)
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Status == "" {
		q.Status = string(StatusActive)
	}
	return nil
}

// =============================================================================
// Conversation Management Responses
// =============================================================================

// ConversationSummary is the metadata view of one conversation.
type ConversationSummary struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Status       ConversationStatus `json:"status"`
	MessageCount int                `json:"message_count"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// InteractionRecord is one persisted turn as returned by the messages
// endpoint. Sources holds the cited source names, not full chunks.
type InteractionRecord struct {
	TurnNumber       int       `json:"turn_number"`
	Query            string    `json:"query"`
	Response         string    `json:"response"`
	Sources          []string  `json:"sources"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConversationDetail is the full view: metadata plus ordered turns.
type ConversationDetail struct {
	ConversationSummary
	Messages []InteractionRecord `json:"messages"`
}
