package main

import (
	"context"
	"fmt"
	"time"

	"odysseywalk/pkg/config"
	"odysseywalk/pkg/core"
	"odysseywalk/pkg/db"
	"odysseywalk/pkg/db/maintenance"
	"odysseywalk/pkg/narrator"
	"odysseywalk/pkg/session"
	"odysseywalk/pkg/store"
)

const (
	heartbeat           = time.Second
	maintenanceInterval = 24 * time.Hour
)

// EventBreadcrumb is the walk event kind for periodic position records.
const EventBreadcrumb = "breadcrumb"

// newScheduler registers the background jobs. The first tick runs
// maintenance, which throttles itself across restarts.
func newScheduler(appCfg *config.Config, st store.StateStore, dbConn *db.DB, sessionMgr *session.Manager) *core.Scheduler {
	sched := core.NewScheduler(heartbeat, realClock)

	mcfg := maintenance.Config{
		AudioMaxAge: appCfg.DB.AudioMaxAge.Std(),
		EventMaxAge: appCfg.DB.EventMaxAge.Std(),
		MinInterval: maintenanceInterval,
	}
	sched.AddJob(core.NewTimeJob("Maintenance", maintenanceInterval, func(ctx context.Context, _ core.Tick) {
		maintenance.Run(ctx, st, dbConn, mcfg)
	}))

	if d := appCfg.Session.Breadcrumb.Meters(); d > 0 {
		sched.AddJob(core.NewDistanceJob("Breadcrumb", d, func(ctx context.Context, t core.Tick) {
			sessionMgr.Record(ctx, EventBreadcrumb, "", fmt.Sprintf("%.6f,%.6f", t.Location.Lat, t.Location.Lng))
		}))
	}
	return sched
}

// feedScheduler forwards position updates to the scheduler.
func feedScheduler(svc *narrator.Service, sched *core.Scheduler) func() {
	return svc.Subscribe(func(ev narrator.Event) {
		if ev.Type == narrator.EventLocation && ev.Location != nil {
			sched.Observe(*ev.Location)
		}
	})
}
