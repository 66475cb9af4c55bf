package bitstream_test

import (
	"testing"

	"github.com/onesync/core/pkg/bitstream"
	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTrip(t *testing.T) {
	for n := 1; n <= 32; n++ {
		mask := uint64(1)<<uint(n) - 1
		for _, v := range []uint64{0, 1, mask, mask >> 1, 0xABCDEF} {
			want := v & mask
			buf := bitstream.New(16)
			ok := buf.Write(n, v)
			assert.True(t, ok, "write n=%d v=%d", n, v)
			buf.SetPos(0)
			got, ok := buf.Read(n)
			assert.True(t, ok)
			assert.Equal(t, want, got, "n=%d v=%d", n, v)
		}
	}
}

func TestWritePastCapacityFailsWithoutMutation(t *testing.T) {
	buf := bitstream.New(1) // 8 bits
	assert.True(t, buf.Write(8, 0xFF))
	before := buf.Pos()
	ok := buf.Write(1, 1)
	assert.False(t, ok)
	assert.Equal(t, before, buf.Pos())
}

func TestSetPosRollsBack(t *testing.T) {
	buf := bitstream.New(4)
	start := buf.Pos()
	buf.Write(13, 42)
	buf.SetPos(start)
	assert.Equal(t, start, buf.Pos())
	buf.Write(13, 100)
	buf.SetPos(0)
	v, ok := buf.Read(13)
	assert.True(t, ok)
	assert.EqualValues(t, 100, v)
}

func TestMixedFieldSequence(t *testing.T) {
	buf := bitstream.New(8)
	assert.True(t, buf.Write(3, 1))
	assert.True(t, buf.Write(13, 4095))
	assert.True(t, buf.Write(16, 65535))
	buf.SetPos(0)

	tag, _ := buf.Read(3)
	id, _ := buf.Read(13)
	netID, _ := buf.Read(16)

	assert.EqualValues(t, 1, tag)
	assert.EqualValues(t, 4095, id)
	assert.EqualValues(t, 65535, netID)
}

func TestWriteBitsReadBits(t *testing.T) {
	buf := bitstream.New(4)
	src := []byte{0b10110010, 0b11000000}
	assert.True(t, buf.WriteBits(src, 10))
	buf.SetPos(0)
	out, ok := buf.ReadBits(10)
	assert.True(t, ok)
	assert.Equal(t, []byte{0b10110010, 0b11000000}, out)
}

func TestLenTracksCursor(t *testing.T) {
	buf := bitstream.New(4)
	assert.Equal(t, 0, buf.Len())
	buf.Write(3, 1)
	assert.Equal(t, 1, buf.Len())
	buf.Write(5, 1)
	assert.Equal(t, 1, buf.Len())
	buf.Write(1, 1)
	assert.Equal(t, 2, buf.Len())
}
