package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := run(context.Background(), nil, new(bytes.Buffer), stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "usage: quotectl")
	assert.Contains(t, stderr.String(), "maintenance:idempotency_cleanup")
}

func TestRunRulesCheckNeedsFile(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := run(context.Background(), []string{"rules-check"}, new(bytes.Buffer), stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "--file is required")
}
