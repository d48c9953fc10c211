package models

// AssetStatus is the download lifecycle of a tracked asset.
type AssetStatus string

const (
	AssetPending     AssetStatus = "pending"
	AssetDownloading AssetStatus = "downloading"
	AssetCompleted   AssetStatus = "completed"
	AssetFailed      AssetStatus = "failed"
)

// QueueStatus is the state of a transfer queue row.
type QueueStatus string

const (
	QueuePending     QueueStatus = "pending"
	QueueDownloading QueueStatus = "downloading"
	QueueUploading   QueueStatus = "uploading"
	QueueCompleted   QueueStatus = "completed"
	QueueFailed      QueueStatus = "failed"
)

// MaxRetries is the fixed transfer retry ceiling. A row that has failed
// this many times is removed from its queue. The outbox applies it only to
// failures that are not transient.
const MaxRetries = 3
