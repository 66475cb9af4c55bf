package wire_test

import (
	"testing"

	"github.com/onesync/core/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func TestTagIsStablePerName(t *testing.T) {
	a := wire.Tag(wire.MsgPackedClones)
	b := wire.Tag(wire.MsgPackedClones)
	c := wire.Tag(wire.MsgPackedAcks)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := []byte("a bit-packed clone frame payload, repeated repeated repeated")
	compressed := wire.Compress(payload)
	got, err := wire.Decompress(compressed)
	assert.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestClonesFrameRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	body := wire.EncodeClonesFrame(42, payload)

	tag, frame, got, err := wire.DecodeFramed(body)
	assert.NoError(t, err)
	assert.Equal(t, wire.Tag(wire.MsgPackedClones), tag)
	assert.EqualValues(t, 42, frame)
	assert.Equal(t, payload, got)
}

func TestAcksFrameUsesZeroFrameIndex(t *testing.T) {
	body := wire.EncodeAcksFrame([]byte{9, 9})
	tag, frame, _, err := wire.DecodeFramed(body)
	assert.NoError(t, err)
	assert.Equal(t, wire.Tag(wire.MsgPackedAcks), tag)
	assert.EqualValues(t, 0, frame)
}

func TestObjectIdsBodyRoundTrip(t *testing.T) {
	runs := [][2]uint16{{0, 0}, {5, 2}}
	body := wire.EncodeObjectIdsBody(runs)
	got, err := wire.DecodeObjectIdsBody(body)
	assert.NoError(t, err)
	assert.Equal(t, runs, got)
}

func TestGameStateAckBodyDecode(t *testing.T) {
	body := []byte{
		0, 0, 0, 0, 0, 0, 0, 7, // frame = 7
		2,    // ignoreN = 2
		0, 1, // id 1
		0, 2, // id 2
	}
	frame, ignored, err := wire.DecodeGameStateAckBody(body)
	assert.NoError(t, err)
	assert.EqualValues(t, 7, frame)
	assert.Equal(t, []uint16{1, 2}, ignored)
}
