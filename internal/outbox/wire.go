package outbox

import (
	"encoding/binary"
	"errors"
)

const magicByte = 0

var errShortFrame = errors.New("wire format frame shorter than header")

// EncodeWireFormat applies Confluent framing: magic byte 0, a big-endian schema id, then the payload.
func EncodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = magicByte
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// DecodeWireFormat strips Confluent framing when present. Unframed payloads are returned as is
// with a schema id of -1.
func DecodeWireFormat(frame []byte) (int, []byte, error) {
	if len(frame) == 0 || frame[0] != magicByte {
		return -1, frame, nil
	}
	if len(frame) < 5 {
		return 0, nil, errShortFrame
	}
	return int(binary.BigEndian.Uint32(frame[1:5])), frame[5:], nil
}
