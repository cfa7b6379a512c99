package bus

import "time"

// Event represents a signal published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Store lifecycle and authentication signals.
const (
	StoreAvailable     = "store.available"
	StoreRemoved       = "store.removed"
	StoreStatusChanged = "store.status_changed"
	AuthChanged        = "auth.changed"
)

// DataPrefix is the namespace of per-collection "data changed" signals.
// The full kind is DataPrefix followed by the collection name, e.g.
// "data.videos".
const DataPrefix = "data."

// Sync and outbox signals.
const (
	SyncRefreshed    = "sync.refreshed"
	SyncFailed       = "sync.failed"
	OutboxSent       = "outbox.sent"
	OutboxFailed     = "outbox.failed"
	OutboxQueued     = "outbox.queued"
	PushNotification = "push.notification"
	PushPrefix       = "push."
)

// DataChanged returns the kind of the "data changed" signal of a collection.
func DataChanged(collection string) string {
	return DataPrefix + collection
}

// StoreInfo is the payload of StoreAvailable and StoreRemoved.
type StoreInfo struct {
	Identity string
	Path     string
}

// AuthState is the payload of AuthChanged.
type AuthState struct {
	Phone         string
	Authenticated bool
	ExpiresAt     time.Time
}

// DataChange is the payload of a data-changed signal.
type DataChange struct {
	Collection string
	Upserted   []string
	Deleted    []string
	ChangeSet  string
}

// SyncReport is the payload of SyncRefreshed and SyncFailed.
type SyncReport struct {
	Collection string
	Created    int
	Updated    int
	Deleted    int
	Err        string
}

// Push is the payload of PushNotification: a remote notification as
// delivered by the platform.
type Push struct {
	Type     int
	VideoKey string
}

// OutboxResult is the payload of OutboxSent and OutboxFailed.
type OutboxResult struct {
	MutationID string
	Op         string
	Target     string
	Err        string
}
