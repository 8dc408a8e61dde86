package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
)

const placesChangedChannel = "places_changed"

// snapshotListener turns places_changed notifications into hub refreshes, so
// a change made by any session or process reaches every open store.
type snapshotListener struct {
	dsn        string
	hub        *places.Hub
	log        *slog.Logger
	metrics    *appMetrics
	retryDelay time.Duration
}

// Run listens until ctx is cancelled, reconnecting after failures.
func (l *snapshotListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("snapshot listener disconnected", "err", err, "retry_in", l.retryDelay.String())

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (l *snapshotListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+placesChangedChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.log.Info("snapshot listener connected", "channel", placesChangedChannel)

	// Notifications sent while disconnected are lost.
	for _, userID := range l.hub.Users() {
		l.refresh(ctx, userID, "reconnect")
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *snapshotListener) handle(ctx context.Context, payload string) {
	userID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || userID <= 0 {
		l.log.Warn("ignoring malformed change notification", "payload", payload)
		return
	}
	if !l.hub.Tracked(userID) {
		return
	}
	l.refresh(ctx, userID, "notify")
}

func (l *snapshotListener) refresh(ctx context.Context, userID int64, reason string) {
	if err := l.hub.Refresh(ctx, userID); err != nil {
		l.log.Error("snapshot refresh failed", "user_id", userID, "reason", reason, "err", err)
		l.metrics.snapshotRefreshes.WithLabelValues("error").Inc()
		return
	}
	l.metrics.snapshotRefreshes.WithLabelValues(reason).Inc()
}
