package protocol

// Event is a loosely-typed journal entry. Every event carries at least
// "seq", "ms" and "type"; the remaining keys depend on the type.
type Event map[string]interface{}

// Event types emitted by the grid, consumed by external indexers.
const (
	EvSourceStarted        = "SOURCE_STARTED"
	EvSourceStopped        = "SOURCE_STOPPED"
	EvReserved             = "RESERVED"
	EvReleased             = "RELEASED"
	EvConsumerConnected    = "CONSUMER_CONNECTED"
	EvConsumerDisconnected = "CONSUMER_DISCONNECTED"
	EvOrphaned             = "ORPHANED"
	EvStatusChanged        = "STATUS_CHANGED"
	EvFuelDeposited        = "FUEL_DEPOSITED"
	EvFuelWithdrawn        = "FUEL_WITHDRAWN"
	EvBurningStarted       = "BURNING_STARTED"
	EvBurningStopped       = "BURNING_STOPPED"
	EvFuelUpdated          = "FUEL_UPDATED"
)

// SUBSCRIBE (observer -> server), first message on a feed connection.
// Cursor resumes the journal after a reconnect; 0 means "from the oldest
// retained event".
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Cursor          uint64 `json:"cursor,omitempty"`
	BatchMax        int    `json:"batch_max,omitempty"`
}

type EventBatchItem struct {
	Cursor uint64 `json:"cursor"`
	Event  Event  `json:"event"`
}

// EVENT_BATCH (server -> observer)
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
	GridID          string           `json:"grid_id,omitempty"`
}

// BOOTSTRAP (server -> observer), sent once per feed connection.
type BootstrapMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	GridID          string `json:"grid_id"`
	Seq             uint64 `json:"seq"`
	CatalogsDigest  string `json:"catalogs_digest,omitempty"`
}
