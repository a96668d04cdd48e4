// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"engagepilot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertCooldown(ctx context.Context, entry model.CooldownEntry) error
	ListCooldowns(ctx context.Context) ([]model.CooldownEntry, error)

	MarkProcessed(ctx context.Context, candidateID string) error
	ListProcessed(ctx context.Context) ([]string, error)
	TrimProcessed(ctx context.Context, keep int) error

	GetDailyCount(ctx context.Context, day string) (int, error)
	UpsertDailyCount(ctx context.Context, day string, count int) error

	CreateRule(ctx context.Context, rule *model.FilterRule) error
	ListRules(ctx context.Context) ([]model.FilterRule, error)
	DeleteRule(ctx context.Context, id int64) error

	CreateSource(ctx context.Context, src *model.Source) error
	ListSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, src *model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	Close() error
}
