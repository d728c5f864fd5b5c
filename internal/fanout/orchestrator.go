// Package fanout resolves the recipients of a freshly created notification
// and pushes it to every registered device under a bounded concurrency.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

const (
	// DefaultParallelism caps the number of in-flight sends per run.
	DefaultParallelism = 50
	// DefaultSendTimeout bounds a single send so a stalled connection cannot
	// hold a concurrency slot indefinitely.
	DefaultSendTimeout = 30 * time.Second
)

// Config tunes one orchestrator instance.
type Config struct {
	Parallelism int
	SendTimeout time.Duration
}

// Orchestrator fans one notification out to every eligible recipient device.
//
// Either dispatcher may be nil when the platform is not configured; that
// platform's branch is skipped and the other still proceeds.
type Orchestrator struct {
	store    dispatch.RecipientStore
	tokens   dispatch.TokenStore
	apns     dispatch.Dispatcher
	fcm      dispatch.Dispatcher
	eligible dispatch.EligibilityPolicy
	cfg      Config
	logger   *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	store dispatch.RecipientStore,
	tokens dispatch.TokenStore,
	apnsDispatcher dispatch.Dispatcher,
	fcmDispatcher dispatch.Dispatcher,
	eligible dispatch.EligibilityPolicy,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if eligible == nil {
		eligible = dispatch.ActiveOnly
	}
	return &Orchestrator{
		store:    store,
		tokens:   tokens,
		apns:     apnsDispatcher,
		fcm:      fcmDispatcher,
		eligible: eligible,
		cfg:      cfg,
		logger:   logger.With("component", "FanOut"),
	}
}

// sendJob is one (user, device token) pair queued for delivery.
type sendJob struct {
	dispatcher dispatch.Dispatcher
	userID     uint
	username   string
	token      string
	msg        dispatch.PushMessage
}

// SendNotification delivers the notification to every eligible recipient
// device. It is designed to run as a fire-and-forget background task: it
// never returns an error, per-send failures are isolated, and a notification
// that has vanished before the run (retention cleanup) is a silent no-op.
//
// The set of (user, token) pairs is snapshotted up front; tokens added or
// removed by concurrent requests after the snapshot are not reflected in this
// run. Badge counts are computed per user at dispatch time, so a user who
// read older notifications in the meantime sees an accurate count.
func (o *Orchestrator) SendNotification(ctx context.Context, notificationID int64) {
	runLogger := o.logger.With("notification_id", notificationID)

	n, err := o.store.Notification(ctx, notificationID)
	if errors.Is(err, notify.ErrNotFound) {
		runLogger.Debug("Notification no longer exists; skipping fan-out.")
		return
	}
	if err != nil {
		runLogger.Error("Failed to load notification", "err", err)
		return
	}

	recipients, err := o.store.Recipients(ctx, notificationID)
	if err != nil {
		runLogger.Error("Failed to load recipients", "err", err)
		return
	}

	base := dispatch.PushMessage{
		Title:    n.Title,
		Subtitle: notify.Preview(n.Subtitle),
		URL:      n.URL,
	}

	jobs := o.collectJobs(ctx, runLogger, recipients, base)
	if len(jobs) == 0 {
		runLogger.Info("No devices registered for recipients; nothing to send.")
		return
	}

	delivered, failed := o.run(ctx, runLogger, jobs)
	runLogger.Info("Fan-out complete",
		"recipients", len(recipients),
		"sends", len(jobs),
		"delivered", delivered,
		"failed", failed,
	)
}

// collectJobs snapshots the eligible (user, token) pairs and builds one send
// job per pair. The iOS badge is resolved once per user and shared across
// that user's iOS tokens; Android payloads carry no badge.
func (o *Orchestrator) collectJobs(
	ctx context.Context,
	runLogger *slog.Logger,
	recipients []dispatch.Recipient,
	base dispatch.PushMessage,
) []sendJob {
	var jobs []sendJob
	for _, r := range recipients {
		if !o.eligible(r) {
			continue
		}

		tokens, err := o.tokens.DeviceTokens(ctx, r.UserID)
		if err != nil {
			runLogger.Error("Failed to load device tokens", "user", r.Username, "err", err)
			continue
		}

		var ios, android []string
		for _, t := range tokens {
			if notify.ClassifyToken(t) == notify.PlatformIOS {
				ios = append(ios, t)
			} else {
				android = append(android, t)
			}
		}

		if len(ios) > 0 && o.apns != nil {
			badge, err := o.store.UnreadCount(ctx, r.UserID)
			if err != nil {
				runLogger.Error("Failed to count unread notifications", "user", r.Username, "err", err)
				badge = 0
			}
			msg := base
			msg.Badge = badge
			for _, t := range ios {
				jobs = append(jobs, sendJob{dispatcher: o.apns, userID: r.UserID, username: r.Username, token: t, msg: msg})
			}
		}

		if len(android) > 0 && o.fcm != nil {
			for _, t := range android {
				jobs = append(jobs, sendJob{dispatcher: o.fcm, userID: r.UserID, username: r.Username, token: t, msg: base})
			}
		}
	}
	return jobs
}

func (o *Orchestrator) execute(ctx context.Context, runLogger *slog.Logger, j sendJob) bool {
	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	defer cancel()

	res, err := j.dispatcher.Send(sendCtx, j.token, j.msg)
	if err != nil {
		runLogger.Error("Push send failed", "user", j.username, "err", err)
		return false
	}

	if res.TokenInvalid {
		runLogger.Info("Device token no longer active; removing.", "user", j.username)
		// Pruning is its own small write, decoupled from the send context so
		// a timed-out send still gets its dead token cleaned up.
		if err := o.tokens.RemoveDeviceToken(ctx, j.userID, j.token); err != nil {
			runLogger.Warn("Failed to remove device token", "user", j.username, "err", err)
		}
		return false
	}

	if !res.Delivered {
		runLogger.Debug("Push not delivered", "user", j.username)
		return false
	}
	return true
}
