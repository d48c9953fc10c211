// Package models defines client-side data models used by the diary sync engine.
package models

import "time"

// DiaryEntry is a journal entry persisted locally and synced with the server.
// There is exactly one entry per (UserID, Date).
type DiaryEntry struct {
	// UserID owns the entry.
	UserID string

	// Date is the calendar day in DateLayout format and, together with
	// UserID, the entry key.
	Date string

	Title string

	// Body is markdown text. It is the only source of asset references.
	Body string

	// Tags is an unordered set; NormalizeTags keeps it sorted and unique.
	Tags []string

	// IsLocalOnly marks an entry that has never been accepted by the server.
	IsLocalOnly bool

	// NeedsSync marks local edits not yet pushed to the server.
	NeedsSync bool

	// LastAppliedChangeID is the id of the remote change last materialized
	// into this entry, if any.
	LastAppliedChangeID *int64

	// LocalVersion is bumped on every local write.
	LocalVersion int64

	// UpdatedAt is the last modification time in UTC.
	UpdatedAt time.Time
}

// Key returns the entry key.
func (e *DiaryEntry) Key() EntryKey {
	return EntryKey{UserID: e.UserID, Date: e.Date}
}

// SyncState is the per-user sync bookkeeping row.
type SyncState struct {
	UserID              string
	LastAppliedChangeID int64
	LastSyncAt          time.Time
	SyncInProgress      bool
}

// Asset is a tracked binary referenced from an entry body. Filename is
// server-assigned and globally unique.
type Asset struct {
	Filename   string
	LocalPath  string
	Owner      EntryKey
	Downloaded bool
	Status     AssetStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PendingAssetDownload is a durable download attempt.
type PendingAssetDownload struct {
	ID         string
	Filename   string
	Owner      EntryKey
	Status     QueueStatus
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PendingAssetUpload is a durable upload attempt. Filename is the name the
// entry body currently references; BackendFilename is set once the server
// has accepted the file.
type PendingAssetUpload struct {
	ID              string
	LocalPath       string
	Filename        string
	Owner           EntryKey
	Status          QueueStatus
	RetryCount      int
	LastError       string
	BackendFilename string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PendingChange is an outbox row for a local edit awaiting push.
type PendingChange struct {
	ID         string
	Key        EntryKey
	Operation  PendingOperation
	// Seq is bumped whenever the row is re-enqueued.
	Seq        int64
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ConflictRecord keeps the losing side of a resolved conflict.
type ConflictRecord struct {
	ID        string
	Key       EntryKey
	ChangeID  int64
	Winner    Decision
	Message   string
	Patch     string
	CreatedAt time.Time
}
