// Package worker drives the periodic invocations of the sending, warmup
// and sync batches. Two modes exist: a self-contained ticker runner, and
// an asynq-backed task server used when Redis is reachable.
package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"outreach/sender"
	"outreach/syncer"
	"outreach/warmup"
)

// Jobs bundles the batch components so both worker modes invoke the same
// entry points.
type Jobs struct {
	Sender  *sender.BatchSender
	Syncer  *syncer.Syncer
	Warmup  *warmup.Engine
	Mailbox *warmup.MailboxMaintainer

	log *logrus.Entry
}

func NewJobs(batch *sender.BatchSender, sync *syncer.Syncer, engine *warmup.Engine, mailbox *warmup.MailboxMaintainer) *Jobs {
	return &Jobs{
		Sender:  batch,
		Syncer:  sync,
		Warmup:  engine,
		Mailbox: mailbox,
		log:     logrus.WithField("component", "worker"),
	}
}

// RunCampaigns executes one bounded campaign sending batch.
func (j *Jobs) RunCampaigns() error {
	report, err := j.Sender.Run(sender.RunFilter{})
	if err != nil {
		return err
	}
	j.log.WithFields(logrus.Fields{
		"campaigns": len(report.Campaigns),
		"sent":      report.TotalSent(),
		"errors":    report.TotalErrors(),
	}).Info("campaign batch finished")
	return nil
}

// RunSync executes one mailbox sync batch.
func (j *Jobs) RunSync() error {
	report, err := j.Syncer.Run()
	if err != nil {
		return err
	}
	j.log.WithFields(logrus.Fields{
		"accounts": report.AccountsProcessed,
		"replies":  report.RepliesFound,
		"bounces":  report.BouncesFound,
	}).Info("mailbox sync finished")
	return nil
}

// RunWarmupCycle runs the internal exchange, the pool exchange and
// mailbox maintenance. A thin pool is normal early on, so the
// not-enough-accounts case only logs.
func (j *Jobs) RunWarmupCycle() error {
	if report, err := j.Warmup.RunExchange(); err != nil {
		j.log.WithError(err).Info("warmup exchange skipped")
	} else {
		j.log.WithField("sent", report.EmailsSent).Info("warmup exchange finished")
	}

	if report, err := j.Warmup.RunPoolExchange(); err != nil {
		j.log.WithError(err).Info("pool exchange skipped")
	} else {
		j.log.WithField("sent", report.EmailsSent).Info("pool exchange finished")
	}

	return j.Mailbox.RunMaintenance()
}

// RunDailyReset zeroes per-day counters and advances warmup ramps.
func (j *Jobs) RunDailyReset() error {
	return j.Warmup.RunDailyReset()
}

// Runner invokes the jobs on fixed tickers, with the daily reset on a
// cron schedule at midnight UTC. Used when no Redis is configured.
type Runner struct {
	jobs *Jobs

	CampaignInterval time.Duration
	SyncInterval     time.Duration
	WarmupInterval   time.Duration

	log *logrus.Entry
}

func NewRunner(jobs *Jobs) *Runner {
	return &Runner{
		jobs:             jobs,
		CampaignInterval: time.Minute,
		SyncInterval:     5 * time.Minute,
		WarmupInterval:   30 * time.Minute,
		log:              logrus.WithField("component", "runner"),
	}
}

// Start blocks until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	// Let the rest of the process finish starting up first.
	time.Sleep(10 * time.Second)
	r.log.Info("worker runner started")

	resetCron := cron.New(cron.WithLocation(time.UTC))
	resetCron.AddFunc("0 0 * * *", func() {
		if err := r.jobs.RunDailyReset(); err != nil {
			r.log.WithError(err).Error("daily reset failed")
		}
	})
	resetCron.Start()
	defer resetCron.Stop()

	campaignTicker := time.NewTicker(r.CampaignInterval)
	syncTicker := time.NewTicker(r.SyncInterval)
	warmupTicker := time.NewTicker(r.WarmupInterval)
	defer campaignTicker.Stop()
	defer syncTicker.Stop()
	defer warmupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("worker runner shutting down")
			return
		case <-campaignTicker.C:
			if err := r.jobs.RunCampaigns(); err != nil {
				r.log.WithError(err).Error("campaign batch failed")
			}
		case <-syncTicker.C:
			if err := r.jobs.RunSync(); err != nil {
				r.log.WithError(err).Error("mailbox sync failed")
			}
		case <-warmupTicker.C:
			if err := r.jobs.RunWarmupCycle(); err != nil {
				r.log.WithError(err).Error("warmup cycle failed")
			}
		}
	}
}
