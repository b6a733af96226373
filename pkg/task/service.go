package task

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type enqueuerImpl struct {
	client *asynq.Client
}

// NewEnqueuer creates a new Enqueuer instance using asynq.Client.
func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &enqueuerImpl{client: client}
}

func (e *enqueuerImpl) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info, nil
}

// Handler binds a task type to its asynq handler.
type Handler struct {
	Type    string
	Handler asynq.Handler
}

// Periodic is a task the scheduler enqueues on Cronspec. An empty Cronspec
// disables it.
type Periodic struct {
	Cronspec string
	Type     string
	Payload  []byte
	Opts     []asynq.Option
}

// AsHandler annotates a constructor so its Handler joins the server mux.
func AsHandler(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"task_handlers"`))
}

// AsPeriodic annotates a constructor so its Periodic joins the scheduler.
func AsPeriodic(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"task_periodic"`))
}
