// Package models defines the core domain models for the workflow
// trigger-and-execution engine.
package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not triggerable
	WorkflowStatusActive   WorkflowStatus = "active"   // Triggerable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not triggerable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, never deleted
)

// EntityType identifies the kind of platform entity a workflow acts on.
type EntityType string

const (
	EntityTypeCandidate EntityType = "candidate"
	EntityTypeJob       EntityType = "job"
	EntityTypeCompany   EntityType = "company"
	EntityTypeReferral  EntityType = "referral"
)

// KnownEntityType reports whether t is one of the supported entity types.
func KnownEntityType(t EntityType) bool {
	switch t {
	case EntityTypeCandidate, EntityTypeJob, EntityTypeCompany, EntityTypeReferral:
		return true
	default:
		return false
	}
}

// TriggerType identifies the domain event that may fire a workflow.
type TriggerType string

const (
	TriggerTypeEntityCreated TriggerType = "entity_created"
	TriggerTypeStatusChanged TriggerType = "status_changed"
	TriggerTypeManual        TriggerType = "manual"
	TriggerTypeSchedule      TriggerType = "schedule"
)

// TriggerSpec declares when a workflow fires and against what.
type TriggerSpec struct {
	Type       TriggerType `json:"type"        validate:"required"`
	EntityType EntityType  `json:"entity_type" validate:"required"`
	Conditions []Condition `json:"conditions,omitempty"`

	// CronExpression is set only for schedule triggers.
	// Standard 5-field cron format (minute hour day month weekday).
	CronExpression string `json:"cron_expression,omitempty"`
}

// NextRun computes the next firing time of a schedule trigger after the
// given reference time.
func (t TriggerSpec) NextRun(after time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(t.CronExpression)
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(after), nil
}

// WorkflowStats holds aggregate execution counters for a workflow.
// These are recomputed periodically from the execution store, never
// incremented transactionally with state transitions.
type WorkflowStats struct {
	ExecutionsStarted   int64      `json:"executions_started"`
	ExecutionsCompleted int64      `json:"executions_completed"`
	ExecutionsFailed    int64      `json:"executions_failed"`
	RecomputedAt        *time.Time `json:"recomputed_at,omitempty"`
}

// Workflow is the immutable-per-version template of a trigger plus an
// ordered action list. Historical executions reference it by ID, so a
// workflow is archived rather than deleted.
type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"     validate:"required,min=3"`
	Category  string         `json:"category"`
	Status    WorkflowStatus `json:"status"   validate:"required"`
	Trigger   TriggerSpec    `json:"trigger"  validate:"required"`
	Actions   []ActionSpec   `json:"actions"  validate:"required,min=1,dive"`
	Stats     WorkflowStats  `json:"stats"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Triggerable reports whether the workflow may accept new trigger requests.
func (w *Workflow) Triggerable() bool {
	return w.Status == WorkflowStatusActive
}
