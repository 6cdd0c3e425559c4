package main

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/horus-rt/horus/internal/heartbeat"
	"github.com/horus-rt/horus/internal/replay"
)

// pulseNode is the reference node body: it does no domain work, but
// demonstrates the full lifecycle contract (Init/Tick/Shutdown) against real
// heartbeat and replay-recording facilities, so a new node author has a
// working example to copy.
type pulseNode struct {
	name   string
	nodeID string
	record bool
	recCfg replay.RecorderConfig

	beacon   *heartbeat.Beacon
	recorder *replay.NodeRecorder

	tick      uint64
	errCount  uint64
	startedAt time.Time
}

func newPulseNode(name string, recCfg replay.RecorderConfig, record bool) *pulseNode {
	return &pulseNode{name: name, nodeID: name, record: record, recCfg: recCfg}
}

func (p *pulseNode) Init(ctx context.Context) error {
	beacon, err := heartbeat.Open(p.name)
	if err != nil {
		return err
	}
	p.beacon = beacon
	p.startedAt = time.Now()

	if p.record {
		p.recorder = replay.NewNodeRecorder(p.name, p.nodeID, p.recCfg)
	}
	return nil
}

func (p *pulseNode) Tick(ctx context.Context) error {
	p.tick++

	if p.recorder != nil {
		p.recorder.BeginTick(p.tick)
	}

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, p.tick)
	if p.recorder != nil {
		p.recorder.RecordOutput("pulse.tick", out)
	}

	elapsed := time.Since(p.startedAt).Seconds()
	rateHz := 0.0
	if elapsed > 0 {
		rateHz = float64(p.tick) / elapsed
	}
	if err := p.beacon.Beat(heartbeat.StateRunning, heartbeat.HealthHealthy, p.tick, p.errCount, rateHz); err != nil {
		p.errCount++
		if p.recorder != nil {
			p.recorder.EndTick(0)
		}
		return err
	}

	if p.recorder != nil {
		p.recorder.EndTick(uint64(time.Since(p.startedAt).Nanoseconds()))
	}
	return nil
}

func (p *pulseNode) Shutdown(ctx context.Context) error {
	if p.recorder != nil {
		if _, err := p.recorder.Finish(); err != nil {
			return err
		}
	}
	if p.beacon != nil {
		if err := p.beacon.Beat(heartbeat.StateStopped, heartbeat.HealthHealthy, p.tick, p.errCount, 0); err != nil {
			return err
		}
		return p.beacon.Close()
	}
	return nil
}
