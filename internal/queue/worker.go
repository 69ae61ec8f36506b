package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/crosspost/internal/service"
)

// HandlePublishPostTask publishes the post named by the task. Per-target
// failures are recorded by the publisher and do not fail the task; only
// infrastructure errors return, letting asynq retry the whole run (already
// published targets are skipped on the rerun).
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	results, err := q.publisher.Publish(ctx, payload.PostID)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			slog.Warn("queued post no longer exists", "post_id", payload.PostID)
			return nil
		}
		return err
	}

	for targetID, result := range results {
		if !result.Success {
			slog.Warn("target failed during queued publish",
				"post_id", payload.PostID, "target_id", targetID, "error", result.ErrorMessage)
		}
	}
	return nil
}
