// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDeadlineAttachesContextDeadline(t *testing.T) {
	router := gin.New()
	router.Use(Deadline(250 * time.Millisecond))

	var deadline time.Time
	var ok bool
	router.GET("/probe", func(c *gin.Context) {
		deadline, ok = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/probe", nil))

	require.True(t, ok, "request context must carry a deadline")
	remaining := time.Until(deadline)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 250*time.Millisecond)
}

func TestDeadlineDefaultsWhenNonPositive(t *testing.T) {
	router := gin.New()
	router.Use(Deadline(0))

	var ok bool
	var deadline time.Time
	router.GET("/probe", func(c *gin.Context) {
		deadline, ok = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/probe", nil))

	require.True(t, ok)
	assert.Greater(t, time.Until(deadline), 50*time.Second,
		"default deadline should be close to 60s")
}

func TestDeadlineExpiresDuringHandler(t *testing.T) {
	router := gin.New()
	router.Use(Deadline(10 * time.Millisecond))

	var err error
	router.GET("/slow", func(c *gin.Context) {
		ctx := c.Request.Context()
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		err = ctx.Err()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/slow", nil))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
