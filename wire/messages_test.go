package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRoundTrip(t *testing.T) {
	d := Data{Type: DataTypeCAN, ID: 0x123, Source: 4, Target: 9, HasTarget: true, Payload: []byte{0x01, 0x02}}

	raw, err := d.Marshal()
	require.NoError(t, err)

	var got Data
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, d, got)
}

func TestDataRoundTripNoTarget(t *testing.T) {
	d := Data{Type: DataTypeStream, ID: 7, Payload: []byte("hello")}

	raw, err := d.Marshal()
	require.NoError(t, err)

	var got Data
	require.NoError(t, got.Unmarshal(raw))
	assert.False(t, got.HasTarget)
	assert.Equal(t, d, got)
}

// TestDataRoundTripTargetZero guards against the zero-value-is-absent trap
// for explicit targeting: node id 0 is a legitimate target (the first node
// ever allocated), so HasTarget=true, Target=0 must still decode with
// HasTarget true rather than silently losing the field.
func TestDataRoundTripTargetZero(t *testing.T) {
	d := Data{Type: DataTypeCAN, ID: 1, HasTarget: true, Target: 0}

	raw, err := d.Marshal()
	require.NoError(t, err)

	var got Data
	require.NoError(t, got.Unmarshal(raw))
	assert.True(t, got.HasTarget)
	assert.Equal(t, d, got)
}

func TestRequestRoundTripEachVariant(t *testing.T) {
	cases := []Request{
		{HasSetName: true, SetName: "alpha"},
		{HasQuery: true, Query: QueryWhoAmI},
		{HasData: true, Data: Data{Type: DataTypeCAN, ID: 1, Payload: []byte{1, 2, 3}}},
		{HasAddRoute: true, AddRoute: Route{From: 1, To: 2}},
		{HasDelRoute: true, DelRoute: Route{From: 1, To: 2}},
		{HasCanDropChance: true, CanDropChance: 0.5},
		{HasCanDropChance: true, CanDropChance: 0},
	}

	for _, want := range cases {
		raw, err := want.Marshal()
		require.NoError(t, err)

		var got Request
		require.NoError(t, got.Unmarshal(raw))
		assert.Equal(t, want, got)
	}
}

func TestResponseRoundTripIDList(t *testing.T) {
	want := Response{
		HasIDList: true,
		IDList: ResponseIDList{
			IDs: []ResponseID{{ID: 0, Name: "alpha"}, {ID: 1, Name: "beta"}},
		},
	}

	raw, err := want.Marshal()
	require.NoError(t, err)

	var got Response
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, want, got)
}

// TestResponseRoundTripNodeZero guards against the zero-value-is-absent trap:
// node id 0 (the first node ever allocated) must still decode with
// HasNode == true, not fall back to looking absent.
func TestResponseRoundTripNodeZero(t *testing.T) {
	want := Response{HasNode: true, Node: 0}

	raw, err := want.Marshal()
	require.NoError(t, err)

	var got Response
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, want, got)
}

func TestConnectionRoundTrip(t *testing.T) {
	want := Connection{ConnectAsNode: true}
	raw, err := want.Marshal()
	require.NoError(t, err)

	var got Connection
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, want, got)
}

func TestEnvelopeFraming(t *testing.T) {
	var buf bytes.Buffer

	req := &Request{HasQuery: true, Query: QueryListSink}
	require.NoError(t, WriteEnvelope(&buf, req))

	other := &Request{HasSetName: true, SetName: "beta"}
	require.NoError(t, WriteEnvelope(&buf, other))

	var got1, got2 Request
	require.NoError(t, ReadEnvelope(&buf, &got1))
	require.NoError(t, ReadEnvelope(&buf, &got2))

	assert.Equal(t, *req, got1)
	assert.Equal(t, *other, got2)
}

func TestReadEnvelopeEOFBetweenFrames(t *testing.T) {
	var buf bytes.Buffer
	var got Request
	err := ReadEnvelope(&buf, &got)
	assert.ErrorIs(t, err, io.EOF)
}
