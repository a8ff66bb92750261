package rics

import (
	"io"
	"log"

	"github.com/atsika/rics/wire"
)

// Forwarder applies the drop injector, then the CAN-broadcast-vs-routed
// decision, to every inbound Data packet. It never holds the node table's
// lock while writing to a socket: Outputs/Writer/Routes snapshot the table
// under its read lock and the writes happen afterward, against plain
// io.Writer values.
type Forwarder struct {
	table   *NodeTable
	drop    *DropInjector
	metrics Metrics
}

// NewForwarder builds a Forwarder over the given table, drop injector and
// metrics sink.
func NewForwarder(table *NodeTable, drop *DropInjector, metrics Metrics) *Forwarder {
	return &Forwarder{table: table, drop: drop, metrics: metrics}
}

// Forward stamps pkt.Source from sender (if sender identifies a registered
// node), applies the drop injector, then delivers it either by CAN broadcast
// or by routing, and reports the resulting wire.Response to every
// destination writer. A write failure to one destination is logged and
// skipped; it never aborts delivery to the remaining destinations, and it is
// not reported back to the sender (see SPEC_FULL.md §9).
func (f *Forwarder) Forward(pkt wire.Data, sender *int32) {
	if sender != nil {
		pkt.Source = *sender
	}

	if f.drop.ShouldDrop(pkt.Type == wire.DataTypeCAN) {
		f.metrics.IncrementPacketsDropped()
		return
	}

	resp := wire.Response{HasData: true, Data: pkt}

	if f.table.CanBroadcast() && pkt.Type == wire.DataTypeCAN {
		f.broadcast(resp, sender)
		return
	}
	f.route(resp, pkt, sender)
}

func (f *Forwarder) broadcast(resp wire.Response, sender *int32) {
	outputs := f.table.Outputs()
	for id, w := range outputs {
		if sender != nil && id == *sender {
			continue
		}
		f.deliver(w, resp)
	}
}

func (f *Forwarder) route(resp wire.Response, pkt wire.Data, sender *int32) {
	var targets []int32
	switch {
	case pkt.HasTarget:
		targets = []int32{pkt.Target}
	case sender != nil:
		targets = f.table.Routes(*sender)
	}

	for _, target := range targets {
		w, ok := f.table.Writer(target)
		if !ok {
			continue
		}
		f.deliver(w, resp)
	}
}

func (f *Forwarder) deliver(w io.Writer, resp wire.Response) {
	if err := wire.WriteEnvelope(w, &resp); err != nil {
		log.Printf("rics: forward: write failed: %v", err)
		return
	}
	f.metrics.IncrementPacketsForwarded()
}
