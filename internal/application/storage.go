package application

import (
	"context"

	"smart-tracker/internal/domain"
)

// RecordStore persists reports posted to the tracker endpoint.
type RecordStore interface {
	Append(ctx context.Context, rec domain.Record) error
	List(ctx context.Context) ([]domain.Record, error)
}

// LatestCache keeps the most recent raw telemetry payload.
type LatestCache interface {
	Put(ctx context.Context, payload []byte) error
	Get(ctx context.Context) ([]byte, bool, error)
}
