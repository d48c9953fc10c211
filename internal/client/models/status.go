package models

import "time"

// SyncPhase is the coarse state of the sync engine.
type SyncPhase string

const (
	PhaseIdle    SyncPhase = "idle"
	PhaseSyncing SyncPhase = "syncing"
	PhaseError   SyncPhase = "error"
)

// SyncStatus is an immutable snapshot published to observers.
type SyncStatus struct {
	Phase         SyncPhase
	PendingAssets int
	FailedAssets  int
	Watermark     int64
	LastError     string
	LastSyncAt    time.Time
}
