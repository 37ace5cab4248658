package shaper

import (
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/veesix-networks/linkshaper/pkg/classify"
	"github.com/veesix-networks/linkshaper/pkg/clock"
	"github.com/veesix-networks/linkshaper/pkg/graph"
)

// MeterQueue forwards every packet untouched and meters what passes:
// total throughput into a live graph, plus a per-IP-protocol byte
// tally decoded in place from the IPv4 header.
type MeterQueue struct {
	queue [][]byte
	graph *graph.Live

	ip4     layers.IPv4
	byProto map[layers.IPProtocol]uint64
}

func NewMeterQueue(name string, graphThroughput bool, clk clock.Clock, graphWriter io.Writer) *MeterQueue {
	m := &MeterQueue{
		byProto: make(map[layers.IPProtocol]uint64),
	}

	if graphThroughput {
		if graphWriter == nil {
			graphWriter = os.Stderr
		}
		m.graph = graph.NewLive(clk, graph.LiveOptions{
			Name:         name,
			YLabel:       "Mbps",
			SignalLabels: []string{"throughput"},
			Multiplier:   8.0 / 1000000.0,
			RateQuantity: true,
			BinWidthMS:   500,
			ResetValue:   0,
			Writer:       graphWriter,
		})
	}

	return m
}

func (m *MeterQueue) ReadPacket(frame []byte) error {
	m.queue = append(m.queue, copyFrame(frame))

	if m.graph != nil {
		m.graph.Series().AddValueNow(0, uint64(len(frame)))
	}

	if len(frame) > classify.EthHeaderLen {
		if err := m.ip4.DecodeFromBytes(frame[classify.EthHeaderLen:], gopacket.NilDecodeFeedback); err == nil {
			m.byProto[m.ip4.Protocol] += uint64(len(frame))
		}
	}

	return nil
}

func (m *MeterQueue) WritePackets(sink Sink) error {
	for len(m.queue) > 0 {
		if err := sink.WritePacket(m.queue[0]); err != nil {
			return err
		}
		m.queue[0] = nil
		m.queue = m.queue[1:]
	}
	return nil
}

func (m *MeterQueue) WaitTime() uint64 {
	if len(m.queue) == 0 {
		return WaitForever
	}
	return 0
}

func (m *MeterQueue) PendingOutput() bool {
	return len(m.queue) > 0
}

func (m *MeterQueue) Finished() bool {
	return false
}

// ProtocolBytes returns a copy of the per-protocol byte tally.
func (m *MeterQueue) ProtocolBytes() map[layers.IPProtocol]uint64 {
	out := make(map[layers.IPProtocol]uint64, len(m.byProto))
	for k, v := range m.byProto {
		out[k] = v
	}
	return out
}

// Close halts the live graph, if any.
func (m *MeterQueue) Close() {
	if m.graph != nil {
		m.graph.Close()
	}
}
