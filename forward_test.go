package rics

import (
	"bytes"
	"testing"

	"github.com/atsika/rics/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readResponse(t *testing.T, buf *bytes.Buffer) wire.Response {
	t.Helper()
	var resp wire.Response
	require.NoError(t, wire.ReadEnvelope(buf, &resp))
	return resp
}

func TestForwardEmptyRoutesDeliversNowhere(t *testing.T) {
	table := NewNodeTable()
	drop := NewDropInjector(0)
	metrics := NewDefaultMetrics()
	f := NewForwarder(table, drop, metrics)

	var buf bytes.Buffer
	sender := table.NewNode(&buf)

	f.Forward(wire.Data{Type: wire.DataTypeCAN, ID: 1}, &sender)

	assert.Equal(t, 0, buf.Len())
}

func TestForwardBroadcastExcludesSender(t *testing.T) {
	table := NewNodeTable()
	table.SetCanBroadcast(true)
	drop := NewDropInjector(0)
	metrics := NewDefaultMetrics()
	f := NewForwarder(table, drop, metrics)

	var bufA, bufB, bufC bytes.Buffer
	a := table.NewNode(&bufA)
	_ = table.NewNode(&bufB)
	_ = table.NewNode(&bufC)

	f.Forward(wire.Data{Type: wire.DataTypeCAN, ID: 1, Payload: []byte{9}}, &a)

	assert.Equal(t, 0, bufA.Len())

	respB := readResponse(t, &bufB)
	respC := readResponse(t, &bufC)
	assert.True(t, respB.HasData)
	assert.Equal(t, int32(0), respB.Data.Source)
	assert.True(t, respC.HasData)
}

func TestForwardRoutedDelivery(t *testing.T) {
	table := NewNodeTable()
	drop := NewDropInjector(0)
	metrics := NewDefaultMetrics()
	f := NewForwarder(table, drop, metrics)

	var bufA, bufB bytes.Buffer
	a := table.NewNode(&bufA)
	b := table.NewNode(&bufB)
	table.AddRoute(a, b)

	f.Forward(wire.Data{Type: wire.DataTypeCAN, ID: 0x123, Payload: []byte{1, 2}}, &a)

	resp := readResponse(t, &bufB)
	require.True(t, resp.HasData)
	assert.Equal(t, int32(0x123), resp.Data.ID)
	assert.Equal(t, a, resp.Data.Source)
	assert.Equal(t, []byte{1, 2}, resp.Data.Payload)
	assert.Equal(t, 0, bufA.Len())
}

func TestForwardExplicitTargetOverridesRoutes(t *testing.T) {
	table := NewNodeTable()
	drop := NewDropInjector(0)
	metrics := NewDefaultMetrics()
	f := NewForwarder(table, drop, metrics)

	var bufA, bufB, bufC bytes.Buffer
	a := table.NewNode(&bufA)
	b := table.NewNode(&bufB)
	_ = table.NewNode(&bufC)

	f.Forward(wire.Data{Type: wire.DataTypeCAN, ID: 1, HasTarget: true, Target: b}, &a)

	assert.Greater(t, bufB.Len(), 0)
	assert.Equal(t, 0, bufC.Len())
}

func TestForwardSourceIsServerStampedNotCallerControlled(t *testing.T) {
	table := NewNodeTable()
	drop := NewDropInjector(0)
	metrics := NewDefaultMetrics()
	f := NewForwarder(table, drop, metrics)

	var bufA, bufB bytes.Buffer
	a := table.NewNode(&bufA)
	b := table.NewNode(&bufB)
	table.AddRoute(a, b)

	// A caller attempting to forge a different source has it overwritten.
	f.Forward(wire.Data{Type: wire.DataTypeCAN, Source: 999}, &a)

	resp := readResponse(t, &bufB)
	assert.Equal(t, a, resp.Data.Source)
}

func TestForwardDropInjectorDiscardsCAN(t *testing.T) {
	table := NewNodeTable()
	drop := NewDropInjector(1.0)
	metrics := NewDefaultMetrics()
	f := NewForwarder(table, drop, metrics)

	var bufA, bufB bytes.Buffer
	a := table.NewNode(&bufA)
	b := table.NewNode(&bufB)
	table.AddRoute(a, b)

	for i := 0; i < 100; i++ {
		f.Forward(wire.Data{Type: wire.DataTypeCAN, HasTarget: true, Target: b}, &a)
	}

	assert.Equal(t, 0, bufB.Len())
	assert.EqualValues(t, 100, metrics.GetPacketsDropped())
}
