package trigger

import (
	"context"
	"fmt"

	"toolhub/services/conversion-api/internal/domain/dispatch"
)

// TriggerConversion satisfies the dispatcher's trigger contract.
func (c *Client) TriggerConversion(ctx context.Context, job dispatch.TriggerJob) error {
	var callbackURL string
	if c.callbackBase != "" {
		callbackURL = fmt.Sprintf("%s/v1/executions/%s/callback", c.callbackBase, job.ExecutionID)
	}
	return c.Trigger(ctx, job.Category, job.Action, Request{
		ExecutionID: job.ExecutionID,
		BlobPath:    job.BlobPath,
		BlobPaths:   job.BlobPaths,
		Parameters:  job.Parameters,
		CallbackURL: callbackURL,
	})
}

var _ dispatch.Trigger = (*Client)(nil)
