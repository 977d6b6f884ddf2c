package trackio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamlake-ai/dreamlake-go/internal/model"
	"github.com/dreamlake-ai/dreamlake-go/internal/trackio"
)

func TestEncodeRow_DecodeRecord_RoundTrip(t *testing.T) {
	p := model.DataPoint{model.TSKey: 1.5, "loss": 0.42, "name": "epoch1"}

	payload, err := trackio.EncodeRow(p)
	require.NoError(t, err)

	decoded, err := trackio.DecodeRecord(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, 1.5, decoded[0].Timestamp())
	assert.Equal(t, 0.42, decoded[0]["loss"])
	assert.Equal(t, "epoch1", decoded[0]["name"])
}

func TestEncodeColumnar_RequiresAtLeastTwoPoints(t *testing.T) {
	_, err := trackio.EncodeColumnar([]model.DataPoint{{model.TSKey: 1.0}})
	assert.Error(t, err)
}

func TestEncodeColumnar_DecodeRecord_RoundTrip(t *testing.T) {
	points := []model.DataPoint{
		{model.TSKey: 1.0, "loss": 0.5},
		{model.TSKey: 2.0, "loss": 0.4, "acc": 0.9},
	}

	payload, err := trackio.EncodeColumnar(points)
	require.NoError(t, err)

	decoded, err := trackio.DecodeRecord(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, 1.0, decoded[0].Timestamp())
	assert.Equal(t, 0.5, decoded[0]["loss"])
	assert.Nil(t, decoded[0]["acc"])

	assert.Equal(t, 2.0, decoded[1].Timestamp())
	assert.Equal(t, 0.4, decoded[1]["loss"])
	assert.Equal(t, 0.9, decoded[1]["acc"])
}

func TestDecodeRecord_MissingTimestampIsCorrupt(t *testing.T) {
	payload, err := trackio.EncodeRow(model.DataPoint{"loss": 0.1})
	require.NoError(t, err)

	_, err = trackio.DecodeRecord(payload)
	require.Error(t, err)
	var corrupt *trackio.ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func TestDecodeRecord_GarbageBytesIsCorrupt(t *testing.T) {
	_, err := trackio.DecodeRecord([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	var corrupt *trackio.ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}
