package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

const TypeNotifyAdmin = "notify:admin"

// Enqueuer is the part of *asynq.Client the queue notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier defers delivery to an asynq worker so a slow or failing
// channel never holds up the request that produced the event.
type QueueNotifier struct {
	client Enqueuer
}

func NewQueueNotifier(client Enqueuer) *QueueNotifier {
	return &QueueNotifier{client: client}
}

func NewNotifyAdminTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotifyAdmin, payload, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

func (n *QueueNotifier) Notify(ctx context.Context, event Event) error {
	task, err := NewNotifyAdminTask(event)
	if err != nil {
		return fmt.Errorf("failed to build notification task: %w", err)
	}
	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	log.WithFields(log.Fields{"task_id": info.ID, "queue": info.Queue}).Debug("notification enqueued")
	return nil
}

// HandleNotifyAdmin returns the worker handler delivering queued events
// through delivery.
func HandleNotifyAdmin(delivery Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event Event
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return fmt.Errorf("bad notification payload: %v: %w", err, asynq.SkipRetry)
		}
		return delivery.Notify(ctx, event)
	}
}

// NewWorker builds the asynq server and mux that drain notification tasks.
func NewWorker(redisOpt asynq.RedisClientOpt, delivery Notifier) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"default": 1},
		Logger:      log.StandardLogger(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotifyAdmin, HandleNotifyAdmin(delivery))
	return srv, mux
}
