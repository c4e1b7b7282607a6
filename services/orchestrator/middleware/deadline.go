// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// The only middleware today is the per-request deadline. It wraps every
// request context with a timeout so downstream work (embedding calls,
// SQL execution, chat generation, store writes) is bounded even when an
// upstream provider hangs.
//
//	Request
//	   │
//	   ▼
//	Deadline(60s default)
//	   │
//	   ├─► context.WithTimeout on the request context
//	   │
//	   └─► Handler (providers observe cancellation)
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultRequestDeadline bounds one request end to end when the caller
// passes a non-positive duration.
const DefaultRequestDeadline = 60 * time.Second

// Deadline replaces the request context with a deadline-bound child.
//
// The handler chain observes cancellation through the usual context
// plumbing; in-flight provider calls are cancelled by their transports
// and the pipeline maps the expiry to a deadline_exceeded error.
func Deadline(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		d = DefaultRequestDeadline
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
