// Package services holds the application services of the sync client: the
// SyncCoordinator that pulls and applies the remote change log, and the
// EntryService that records local edits and pushes them back.
package services
