// Package simple contains the permissive fetch policy used when rate limiting is off.
package simple

import (
	"context"
	"fmt"
)

// Policy never throttles. It implements scrape.Policy.
type Policy struct{}

// New creates a new Policy.
func New() Policy {
	return Policy{}
}

// Wait returns immediately unless the context is already done.
func (Policy) Wait(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("policy wait: %w", err)
	}
	return nil
}
