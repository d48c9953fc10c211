package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of an entry date.
const DateLayout = "2006-01-02"

// EntryKey identifies an entry.
type EntryKey struct {
	UserID string
	Date   string
}

func (k EntryKey) String() string {
	return k.UserID + "/" + k.Date
}

// ValidateDate reports whether s is a calendar day in DateLayout.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("invalid entry date %q: %w", s, err)
	}
	return nil
}

// NormalizeTags trims, drops empties and returns the sorted unique set.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// PendingOperation is the kind of an outbox row.
type PendingOperation string

const (
	PendingUpsert PendingOperation = "upsert"
	PendingDelete PendingOperation = "delete"
)
