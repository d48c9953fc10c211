package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// OperationType is the kind of a remote change.
type OperationType string

const (
	OperationCreated OperationType = "created"
	OperationUpdated OperationType = "updated"
	OperationDeleted OperationType = "deleted"
)

// UnmarshalJSON accepts any letter case.
func (o *OperationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := OperationType(strings.ToLower(s))
	switch v {
	case OperationCreated, OperationUpdated, OperationDeleted:
		*o = v
		return nil
	}
	return fmt.Errorf("unknown operation type %q", s)
}

// EntrySnapshot is the entry payload carried by a change and by the
// items endpoint.
type EntrySnapshot struct {
	Date  string   `json:"date"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// SyncChange is an immutable remote change log record. ID is the log
// position used for watermarking.
type SyncChange struct {
	ID              int64          `json:"id"`
	UserID          string         `json:"userId"`
	Date            string         `json:"date"`
	Operation       OperationType  `json:"operationType"`
	ServerTimestamp time.Time      `json:"serverTimestamp"`
	Entry           *EntrySnapshot `json:"entry,omitempty"`
	Metadata        []string       `json:"metadata,omitempty"`
}

// ClientTagPrefix prefixes the metadata tag naming the client that
// produced a change.
const ClientTagPrefix = "client:"

// FromClient reports whether the change carries the client tag for
// clientID.
func (c *SyncChange) FromClient(clientID string) bool {
	if clientID == "" {
		return false
	}
	return slices.Contains(c.Metadata, ClientTagPrefix+clientID)
}

// Key returns the key of the entry the change targets.
func (c *SyncChange) Key() EntryKey {
	return EntryKey{UserID: c.UserID, Date: c.Date}
}

// ToEntry materializes the snapshot as a synced entry.
func (c *SyncChange) ToEntry() (*DiaryEntry, error) {
	if c.Entry == nil {
		return nil, fmt.Errorf("change %d (%s) has no entry snapshot", c.ID, c.Operation)
	}
	id := c.ID
	return &DiaryEntry{
		UserID:              c.UserID,
		Date:                c.Date,
		Title:               c.Entry.Title,
		Body:                c.Entry.Body,
		Tags:                NormalizeTags(c.Entry.Tags),
		LastAppliedChangeID: &id,
		UpdatedAt:           c.ServerTimestamp.UTC(),
	}, nil
}

// ChangePage is one response of the change log endpoint.
type ChangePage struct {
	Changes []SyncChange `json:"changes"`
	HasMore bool         `json:"hasMore"`
	NextID  *int64       `json:"nextId,omitempty"`
}

// StoredEntry is the items endpoint response.
type StoredEntry struct {
	EntrySnapshot
	PreviousDate *string `json:"previousDate,omitempty"`
	NextDate     *string `json:"nextDate,omitempty"`
}

// Decision is the outcome of conflict resolution.
type Decision string

const (
	KeepLocal  Decision = "keep_local"
	KeepRemote Decision = "keep_remote"
)
