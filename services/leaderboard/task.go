package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/task"
	"smallbiznis-tokenomics/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type RebuildPayload struct {
	// Full clears the board before recomputing.
	Full bool `json:"full"`
}

type Task struct {
	updater *Updater
}

func NewTask(u *Updater) *Task {
	return &Task{updater: u}
}

func (t *Task) HandleRebuild(ctx context.Context, at *asynq.Task) error {
	var payload RebuildPayload
	if len(at.Payload()) > 0 {
		if err := json.Unmarshal(at.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	zapLog := zap.L().With(zap.String("task_type", at.Type()), zap.Bool("full", payload.Full))

	var (
		results []RankingUpdateResult
		err     error
	)
	if payload.Full {
		results, err = t.updater.RebuildAllRankings(ctx)
	} else {
		results, err = t.updater.UpdateLeaderboardRankings(ctx)
	}
	if err != nil {
		return err
	}

	zapLog.Info("leaderboard task finished", zap.Int("users", len(results)))
	return nil
}

func newRebuildHandler(t *Task) task.Handler {
	return task.Handler{Type: taskname.LeaderboardRebuild, Handler: asynq.HandlerFunc(t.HandleRebuild)}
}

func newRebuildPeriodic(cfg *config.Config) task.Periodic {
	return task.Periodic{
		Cronspec: cfg.Tokens.Leaderboard.Schedule,
		Type:     taskname.LeaderboardRebuild,
		Opts:     []asynq.Option{asynq.Queue("low"), asynq.MaxRetry(1)},
	}
}

func NewRebuildTask(full bool) (*asynq.Task, error) {
	raw, err := json.Marshal(RebuildPayload{Full: full})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.LeaderboardRebuild, raw), nil
}
