package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/crosspost/internal/scheduler"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type SchedulerHandler struct {
	loop *scheduler.Loop
}

func NewSchedulerHandler(loop *scheduler.Loop) *SchedulerHandler {
	return &SchedulerHandler{loop: loop}
}

func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(transfer.SchedulerStatus{
		Running:         h.loop.IsRunning(),
		IntervalSeconds: int64(h.loop.Interval() / time.Second),
	})
}

// CheckNow kicks off a pass in the background and acknowledges immediately;
// if a pass is already in flight the request is a no-op.
func (h *SchedulerHandler) CheckNow(c *fiber.Ctx) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		h.loop.CheckNow(ctx)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Scheduler check triggered",
	})
}
