// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/errutil"
)

func TestOpen_InvalidURL(t *testing.T) {
	_, err := store.Open(context.Background(), "::not a url::", store.OpenOptions{})
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestOpen_GivesUpAfterAttempts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, err := store.Open(ctx, "postgres://keyward@127.0.0.1:1/keyward?connect_timeout=1", store.OpenOptions{
		Attempts: 2,
		Backoff:  10 * time.Millisecond,
	})
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 2)
	assert.Less(t, time.Since(start), 10*time.Second)
}
