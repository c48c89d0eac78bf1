// Package cron implements the scheduler: promotion of due delayed jobs
// into ready structures and materialization of concrete jobs from
// persisted cron definitions. One definition spawns many job instances
// over time and is never consumed.
package cron

import (
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// Definition is a persisted cron schedule plus the job template it
// materializes on each firing.
type Definition struct {
	jobq.Entity

	ID    id.SchedID `json:"id"`
	Queue string     `json:"queue"`

	// Spec is a standard 5-field cron expression (minute granularity).
	Spec string `json:"spec"`

	// Job template fields, copied onto every materialized instance.
	Payload     []byte        `json:"payload,omitempty"`
	Priority    int           `json:"priority,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	Enabled   bool       `json:"enabled"`
}
