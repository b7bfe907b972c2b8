package protocol

import "encoding/json"

const Version = "0.3"

// Feed message types.
const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeBootstrap  = "BOOTSTRAP"
	TypeEventBatch = "EVENT_BATCH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
