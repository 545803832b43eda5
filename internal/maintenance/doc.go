// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package maintenance coordinates maintenance mode and the subsystems that must
stop touching the database while a restore replaces it.

# Overview

The Coordinator holds three pieces of state:

  - the maintenance flag (with reason and since), optionally persisted
    through a FlagStore so a crash mid-restore is noticed on restart
  - whether dependent services are paused
  - a counter of admitted operations (backups)

There is no package-level instance; the Coordinator is created once in main
and injected into the backup engine (as its OperationGate), the restore
orchestrator, the scheduler and the API.

# Usage

	coord := maintenance.NewCoordinator(maintenance.Options{
	    Store: maintenance.NewBadgerFlagStore(db),
	})
	coord.Register(schedulerService)
	coord.AddListener(maintenance.ListenerFunc(func(ctx context.Context, s maintenance.State) {
	    hub.BroadcastJSON("maintenance", s)
	}))

	if err := coord.EnableMaintenance(ctx, "restore "+id); err != nil {
	    return err // maintenance.ErrMaintenanceModeFailure
	}
	defer coord.DisableMaintenance(ctx)
	_ = coord.WaitForOperations(ctx)
	report := coord.PauseAllServices(ctx)
	defer coord.ResumeAllServices(ctx)

Pause and resume are idempotent and tolerant: a subsystem that fails to
pause is listed in the Report and logged, and the others are still paused.
*/
package maintenance
