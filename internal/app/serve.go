package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"market-recap/internal/scheduler"
	"market-recap/internal/storage"
)

// Serve runs the pipeline on the configured cron schedule until interrupted.
func (a *App) Serve(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.Parse(a.Config.Scheduler.Schedule)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archiving and run locking disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	recorder := a.newRecorder()
	svc, err := a.newService(opts, recorder)
	if err != nil {
		return err
	}

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		srv := recorder.Serve(addr)
		a.Logger.Info().Str("addr", addr).Msg("metrics listener started")
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var (
		runStore storage.RunStore
		locker   storage.AdvisoryLocker
	)
	if store != nil {
		runStore = store
		locker = store
	}
	lockKey := a.Config.Scheduler.AdvisoryLockKey

	s := scheduler.New(scheduler.Options{
		Schedule:     sched,
		Location:     a.Config.Location(),
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.base)

	tick := func(ctx context.Context, firedAt time.Time) error {
		unlock, proceed, err := acquireLock(ctx, locker, lockKey)
		if err != nil {
			return err
		}
		if !proceed {
			a.Logger.Info().Time("fired_at", firedAt).Msg("skip run because advisory lock held elsewhere")
			return nil
		}
		if unlock != nil {
			defer unlock()
		}
		_, err = a.execute(ctx, svc, runStore, recorder)
		return err
	}

	a.Logger.Info().Str("schedule", a.Config.Scheduler.Schedule).Str("timezone", a.Config.Scheduler.Timezone).Msg("starting recap service")
	err = s.Run(ctx, tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("recap service stopped")
	return nil
}

func acquireLock(ctx context.Context, locker storage.AdvisoryLocker, key int64) (func(), bool, error) {
	if key == 0 || locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
