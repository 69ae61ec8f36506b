package queue

import (
	"github.com/maheshrc27/crosspost/internal/service"
)

// Queue handles the publish-now path: post creation enqueues a task and this
// worker drives the publisher when it fires. Scheduled posts missed by their
// task are caught by the polling scheduler.
type Queue struct {
	publisher service.Publisher
}

func NewQueue(publisher service.Publisher) *Queue {
	return &Queue{publisher: publisher}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}
