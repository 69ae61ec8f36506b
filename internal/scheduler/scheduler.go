package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
)

// Loop polls for posts whose scheduled time has arrived and hands them to the
// publisher. It is the safety net behind the publish queue: a post missed by
// its queued task is picked up here on the next tick.
type Loop struct {
	posts     repository.PostRepository
	publisher service.Publisher
	interval  time.Duration
	now       func() time.Time

	// sem makes the ticker pass and CheckNow mutually exclusive; whichever
	// holds the slot runs, the other returns without a second invocation.
	sem chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(posts repository.PostRepository, publisher service.Publisher, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Loop{
		posts:     posts,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		sem:       make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine. Starting an already running loop is a
// no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go l.run(ctx)
	slog.Info("scheduler started", "interval", l.interval)
}

// Stop cancels the loop and waits for it to wind down. An in-flight pass runs
// to completion; only the sleep between passes is interrupted.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	slog.Info("scheduler stopped")
}

func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) Interval() time.Duration {
	return l.interval
}

// CheckNow runs one pass immediately. If a pass is already in flight it
// returns without running a second one.
func (l *Loop) CheckNow(ctx context.Context) {
	select {
	case l.sem <- struct{}{}:
	default:
		slog.Info("check requested while a pass is in flight, skipping")
		return
	}
	defer func() { <-l.sem }()

	l.pass(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case l.sem <- struct{}{}:
			default:
				continue
			}
			l.pass(ctx)
			<-l.sem
		}
	}
}

// pass publishes every due post sequentially. A failing post is marked failed
// and logged; it never stops the pass, and no error escapes to kill the loop.
func (l *Loop) pass(ctx context.Context) {
	due, err := l.posts.ListDue(ctx, l.now())
	if err != nil {
		slog.Error("failed to query due posts", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	slog.Info("processing due posts", "count", len(due))
	for _, post := range due {
		if _, err := l.publisher.Publish(ctx, post.ID); err != nil {
			slog.Error("scheduled publish failed", "post_id", post.ID, "error", err)
			if !errors.Is(err, service.ErrPostNotFound) {
				if uerr := l.posts.UpdateStatus(ctx, post.ID, models.PostStatusFailed); uerr != nil {
					slog.Error("failed to mark post failed", "post_id", post.ID, "error", uerr)
				}
			}
		}
	}
}
