package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Task types processed by the task server.
const (
	TaskTypeCampaignSend = "campaign:send"
	TaskTypeMailboxSync  = "mailbox:sync"
	TaskTypeWarmupCycle  = "warmup:cycle"
	TaskTypeDailyReset   = "daily:reset"
)

// Queue names in priority order.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// RedisAvailable pings the Redis endpoint to decide whether the task
// server mode can run. An empty address or a failed ping selects the
// ticker runner instead.
func RedisAvailable(addr, password string, db int) bool {
	if addr == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("redis unreachable, falling back to ticker runner")
		return false
	}
	return true
}

// TaskServer runs the jobs through asynq with cron-scheduled recurring
// tasks, so multiple replicas share one work queue.
type TaskServer struct {
	jobs      *Jobs
	server    *asynq.Server
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

func NewTaskServer(redisAddr, password string, db int, jobs *Jobs) *TaskServer {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		StrictPriority: true,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	return &TaskServer{
		jobs:      jobs,
		server:    server,
		scheduler: scheduler,
		log:       logrus.WithField("component", "task_server"),
	}
}

// Start registers handlers and recurring schedules, then runs the server
// until Shutdown.
func (ts *TaskServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeCampaignSend, func(ctx context.Context, t *asynq.Task) error {
		return ts.jobs.RunCampaigns()
	})
	mux.HandleFunc(TaskTypeMailboxSync, func(ctx context.Context, t *asynq.Task) error {
		return ts.jobs.RunSync()
	})
	mux.HandleFunc(TaskTypeWarmupCycle, func(ctx context.Context, t *asynq.Task) error {
		return ts.jobs.RunWarmupCycle()
	})
	mux.HandleFunc(TaskTypeDailyReset, func(ctx context.Context, t *asynq.Task) error {
		return ts.jobs.RunDailyReset()
	})

	if err := ts.registerSchedules(); err != nil {
		return err
	}
	go func() {
		if err := ts.scheduler.Run(); err != nil {
			ts.log.WithError(err).Error("scheduler stopped")
		}
	}()

	ts.log.Info("task server started")
	if err := ts.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}
	return nil
}

func (ts *TaskServer) registerSchedules() error {
	schedules := []struct {
		spec     string
		taskType string
		queue    string
	}{
		{"*/1 * * * *", TaskTypeCampaignSend, QueueCritical},
		{"*/5 * * * *", TaskTypeMailboxSync, QueueDefault},
		{"*/30 * * * *", TaskTypeWarmupCycle, QueueLow},
		{"0 0 * * *", TaskTypeDailyReset, QueueDefault},
	}

	for _, s := range schedules {
		entryID, err := ts.scheduler.Register(s.spec, asynq.NewTask(s.taskType, nil,
			asynq.Queue(s.queue),
			asynq.MaxRetry(1),
		))
		if err != nil {
			return fmt.Errorf("failed to register %s schedule: %w", s.taskType, err)
		}
		ts.log.WithFields(logrus.Fields{
			"task":  s.taskType,
			"spec":  s.spec,
			"entry": entryID,
		}).Debug("registered recurring task")
	}
	return nil
}

func (ts *TaskServer) Shutdown() {
	ts.scheduler.Shutdown()
	ts.server.Shutdown()
	ts.log.Info("task server stopped")
}
