// Package wire implements the outer envelope every message crosses
// the network in: a content-addressed u32 tag identifying the
// message type, and a compressed payload. It plays the role the spec
// assigns to "hashed message-type constants" and the LZ4 codec,
// both listed there as opaque external collaborators.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Message names, hashed with Tag to produce their wire-level u32 id.
const (
	MsgPackedClones      = "msgPackedClones"
	MsgPackedAcks        = "msgPackedAcks"
	MsgObjectIds         = "msgObjectIds"
	MsgWorldGrid         = "msgWorldGrid"
	MsgTimeSync          = "msgTimeSync"
	MsgNetGameEvent      = "msgNetGameEvent"
	MsgNetClones         = "netClones"
	MsgNetAcks           = "netAcks"
	MsgRequestObjectIds  = "msgRequestObjectIds"
	MsgGameStateAck      = "gameStateAck"
	MsgTimeSyncReq       = "msgTimeSyncReq"
	MsgLogin             = "msgLogin"
	MsgLoginSuccess      = "msgLoginSuccess"
	MsgLoginFailure      = "msgLoginFailure"
	MsgUDPHello          = "msgUdpHello"
)

// Tag returns the u32 wire identifier for a message name.
func Tag(name string) uint32 {
	return uint32(xxhash.Sum64String(name))
}

var encoder, _ = zstd.NewWriter(nil)

// Compress compresses payload the way the outbound framing path
// compresses clone and ack bitstreams before they hit the transport.
func Compress(payload []byte) []byte {
	return encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
}

// Decompress reverses Compress.
func Decompress(payload []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: creating decoder: %w", err)
	}
	defer decoder.Close()
	return decoder.DecodeAll(payload, nil)
}

// EncodeClonesFrame builds the S→C msgPackedClones body:
// <u32 tag><u64 frame><compressed bitstream>.
func EncodeClonesFrame(frame uint64, bitstreamPayload []byte) []byte {
	return encodeFramed(MsgPackedClones, frame, bitstreamPayload)
}

// EncodeAcksFrame builds the S→C msgPackedAcks body:
// <u32 tag><u64 0><compressed bitstream>.
func EncodeAcksFrame(bitstreamPayload []byte) []byte {
	return encodeFramed(MsgPackedAcks, 0, bitstreamPayload)
}

func encodeFramed(name string, frame uint64, payload []byte) []byte {
	compressed := Compress(payload)
	buf := new(bytes.Buffer)
	buf.Grow(4 + 8 + len(compressed))
	_ = binary.Write(buf, binary.BigEndian, Tag(name))
	_ = binary.Write(buf, binary.BigEndian, frame)
	buf.Write(compressed)
	return buf.Bytes()
}

// DecodeFramed splits a <u32 tag><u64 frame><compressed payload>
// envelope and decompresses the payload.
func DecodeFramed(body []byte) (tag uint32, frame uint64, payload []byte, err error) {
	if len(body) < 12 {
		return 0, 0, nil, fmt.Errorf("wire: frame too short: %d bytes", len(body))
	}
	tag = binary.BigEndian.Uint32(body[0:4])
	frame = binary.BigEndian.Uint64(body[4:12])
	payload, err = Decompress(body[12:])
	return tag, frame, payload, err
}

// EncodeInboundFrame builds the C→S netClones/netAcks body: just a
// compressed bitstream, with no tag or frame prefix of its own (the
// transport layer supplies <u32 msg_type> outside this payload).
func EncodeInboundFrame(payload []byte) []byte {
	return Compress(payload)
}

// DecodeInboundFrame decompresses a C→S netClones/netAcks body.
func DecodeInboundFrame(payload []byte) ([]byte, error) {
	return Decompress(payload)
}

// EncodeObjectIdsBody builds the S→C msgObjectIds body:
// <u16 count><(u16 gap, u16 len)*>.
func EncodeObjectIdsBody(runs [][2]uint16) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, uint16(len(runs)))
	for _, r := range runs {
		_ = binary.Write(buf, binary.BigEndian, r[0])
		_ = binary.Write(buf, binary.BigEndian, r[1])
	}
	return buf.Bytes()
}

// DecodeObjectIdsBody reverses EncodeObjectIdsBody.
func DecodeObjectIdsBody(body []byte) ([][2]uint16, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("wire: msgObjectIds body too short")
	}
	count := binary.BigEndian.Uint16(body[0:2])
	need := 2 + int(count)*4
	if len(body) < need {
		return nil, fmt.Errorf("wire: msgObjectIds body truncated: have %d need %d", len(body), need)
	}
	out := make([][2]uint16, count)
	off := 2
	for i := 0; i < int(count); i++ {
		gap := binary.BigEndian.Uint16(body[off : off+2])
		length := binary.BigEndian.Uint16(body[off+2 : off+4])
		out[i] = [2]uint16{gap, length}
		off += 4
	}
	return out, nil
}

// EncodeWorldGridBody builds the S→C msgWorldGrid body:
// <u16 base><u16 len><bytes>.
func EncodeWorldGridBody(base uint16, payload []byte) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, base)
	_ = binary.Write(buf, binary.BigEndian, uint16(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// EncodeWorldGridMessage prefixes an EncodeWorldGridBody body with
// the msgWorldGrid tag, the full wire message send_world_grid writes.
func EncodeWorldGridMessage(base uint16, payload []byte) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, Tag(MsgWorldGrid))
	buf.Write(EncodeWorldGridBody(base, payload))
	return buf.Bytes()
}

// EncodeTimeSyncBody builds the S→C msgTimeSync body:
// <u32 reqTime><u32 reqSeq><u32 serverTime>.
func EncodeTimeSyncBody(reqTime, reqSeq, serverTime uint32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, reqTime)
	_ = binary.Write(buf, binary.BigEndian, reqSeq)
	_ = binary.Write(buf, binary.BigEndian, serverTime)
	return buf.Bytes()
}

// EncodeTimeSyncMessage prefixes an EncodeTimeSyncBody body with the
// msgTimeSync tag.
func EncodeTimeSyncMessage(reqTime, reqSeq, serverTime uint32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, Tag(MsgTimeSync))
	buf.Write(EncodeTimeSyncBody(reqTime, reqSeq, serverTime))
	return buf.Bytes()
}

// EncodeObjectIdsMessage prefixes an EncodeObjectIdsBody body with
// the msgObjectIds tag.
func EncodeObjectIdsMessage(runs [][2]uint16) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, Tag(MsgObjectIds))
	buf.Write(EncodeObjectIdsBody(runs))
	return buf.Bytes()
}

// DecodeTimeSyncReqBody reverses the C→S msgTimeSyncReq body:
// <u32 t><u32 seq>.
func DecodeTimeSyncReqBody(body []byte) (t, seq uint32, err error) {
	if len(body) < 8 {
		return 0, 0, fmt.Errorf("wire: msgTimeSyncReq body too short")
	}
	return binary.BigEndian.Uint32(body[0:4]), binary.BigEndian.Uint32(body[4:8]), nil
}

// EncodeLoginSuccessMessage builds the S→C msgLoginSuccess body:
// <u32 tag><u16 netID>.
func EncodeLoginSuccessMessage(netID uint16) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, Tag(MsgLoginSuccess))
	_ = binary.Write(buf, binary.BigEndian, netID)
	return buf.Bytes()
}

// EncodeLoginFailureMessage builds the S→C msgLoginFailure body:
// <u32 tag><u16 len><reason bytes>.
func EncodeLoginFailureMessage(reason string) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, Tag(MsgLoginFailure))
	_ = binary.Write(buf, binary.BigEndian, uint16(len(reason)))
	buf.WriteString(reason)
	return buf.Bytes()
}

// EncodeUDPHelloMessage builds the C→S msgUdpHello body a client sends
// over its UDP socket once to bind its address to an already
// TCP-authenticated net id: <u32 tag><u16 netID>.
func EncodeUDPHelloMessage(netID uint16) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, Tag(MsgUDPHello))
	_ = binary.Write(buf, binary.BigEndian, netID)
	return buf.Bytes()
}

// DecodeUDPHelloBody reverses EncodeUDPHelloMessage's body (post-tag).
func DecodeUDPHelloBody(body []byte) (netID uint16, err error) {
	if len(body) < 2 {
		return 0, fmt.Errorf("wire: msgUdpHello body too short")
	}
	return binary.BigEndian.Uint16(body[0:2]), nil
}

// DecodeGameStateAckBody reverses the C→S gameStateAck body:
// <u64 frame><u8 ignoreN><u16 ids[ignoreN]>.
func DecodeGameStateAckBody(body []byte) (frame uint64, ignored []uint16, err error) {
	if len(body) < 9 {
		return 0, nil, fmt.Errorf("wire: gameStateAck body too short")
	}
	frame = binary.BigEndian.Uint64(body[0:8])
	n := int(body[8])
	need := 9 + n*2
	if len(body) < need {
		return 0, nil, fmt.Errorf("wire: gameStateAck body truncated")
	}
	ignored = make([]uint16, n)
	off := 9
	for i := 0; i < n; i++ {
		ignored[i] = binary.BigEndian.Uint16(body[off : off+2])
		off += 2
	}
	return frame, ignored, nil
}
