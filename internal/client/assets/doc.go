// Package assets manages binary attachments referenced from entry bodies.
//
// An entry body is the only record of which files belong to it: the Tracker
// parses markdown image references and reconciles the tracked set whenever
// a body changes. Transfers run from durable queues (DownloadManager,
// UploadManager), failed rows are revisited by the RetryCoordinator, and
// CleanupService sweeps what nothing references any more.
package assets
