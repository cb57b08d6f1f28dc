package wire

import "encoding/json"

// Recognized control strings carried in MESSAGE frames.
const (
	MsgHello = "HELLO"
	MsgReady = "READY"
	MsgAck   = "ACK"
	MsgPing  = "PING"
	MsgPong  = "PONG"
)

// FileInfo is the FILE_INFO payload: a UTF-8 JSON object
// {"name": string, "size": u64, "mtime": u64|null}.
type FileInfo struct {
	Name  string `json:"name"`
	Size  uint64 `json:"size"`
	MTime *uint64 `json:"mtime"`
}

// EncodeFileInfo marshals fi to its JSON wire representation.
func EncodeFileInfo(fi FileInfo) ([]byte, error) {
	return json.Marshal(fi)
}

// DecodeFileInfo unmarshals the JSON wire representation of a FileInfo.
func DecodeFileInfo(payload []byte) (FileInfo, error) {
	var fi FileInfo
	if err := json.Unmarshal(payload, &fi); err != nil {
		return FileInfo{}, err
	}
	return fi, nil
}
