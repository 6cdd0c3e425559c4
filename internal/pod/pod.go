// Package pod implements the POD channel (spec 4.2): a single-slot,
// latest-value SPSC transport layered on a shared-memory region. One producer
// publishes fixed-layout byte messages; any number of consumers observe the
// most recently published value.
package pod

import (
	"runtime"
	"time"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/shm"
)

// Header layout (packed, 64-byte aligned), per spec section 6:
//
//	{magic: u64, element_size: u64, sequence: atomic u64, reserved: [u8; 40]}
const (
	Magic uint64 = 0x484F525553504F44 // "HORUSPOD"

	offMagic       uint32 = 0
	offElementSize uint32 = 8
	offSequence    uint32 = 16
	HeaderSize     uint32 = 64
)

// Topic is an open POD region: one producer role, any number of consumer
// roles, sharing the same underlying Region.
type Topic struct {
	region      *shm.Region
	elementSize uint32
}

// Open creates or attaches the named POD topic. The first opener initializes
// the header (magic, element size); later openers validate an exact match and
// fail with a Validation error on divergence.
func Open(name string, elementSize uint32) (*Topic, error) {
	region, err := shm.OpenRegion(shm.OpenRegionOpts{
		Path:   shm.PathFor("pod", name),
		Size:   HeaderSize + elementSize,
		Create: true,
	})
	if err != nil {
		return nil, err
	}

	existingMagic, _ := region.Provider.AtomicLoad64(offMagic)
	if existingMagic == 0 {
		if err := initHeader(region, elementSize); err != nil {
			region.Close()
			return nil, err
		}
		return &Topic{region: region, elementSize: elementSize}, nil
	}

	if existingMagic != Magic {
		region.Close()
		return nil, herr.MismatchErr("pod.Open", "magic", Magic, existingMagic).WithContext("topic", name)
	}

	existingSize, err := region.Provider.AtomicLoad64(offElementSize)
	if err != nil {
		region.Close()
		return nil, herr.IoErr("pod.Open", err)
	}
	if uint32(existingSize) != elementSize {
		region.Close()
		return nil, herr.MismatchErr("pod.Open", "element_size", elementSize, existingSize).WithContext("topic", name)
	}

	return &Topic{region: region, elementSize: elementSize}, nil
}

// OpenWithProvider wires a topic directly onto a caller-supplied provider
// (the in-memory test backend), bypassing the filesystem.
func OpenWithProvider(p shm.Provider, elementSize uint32) (*Topic, error) {
	region := &shm.Region{Provider: p}
	if existing, _ := p.AtomicLoad64(offMagic); existing == 0 {
		if err := initHeader(region, elementSize); err != nil {
			return nil, err
		}
	}
	return &Topic{region: region, elementSize: elementSize}, nil
}

func initHeader(region *shm.Region, elementSize uint32) error {
	if err := region.Provider.AtomicStore64(offElementSize, uint64(elementSize)); err != nil {
		return herr.IoErr("pod.initHeader", err)
	}
	if err := region.Provider.AtomicStore64(offSequence, 0); err != nil {
		return herr.IoErr("pod.initHeader", err)
	}
	// Magic is written last: its presence signals "header is initialized" to
	// later openers racing this one.
	if err := region.Provider.AtomicStore64(offMagic, Magic); err != nil {
		return herr.IoErr("pod.initHeader", err)
	}
	return nil
}

// Close detaches from the topic's backing region.
func (t *Topic) Close() error {
	return t.region.Close()
}

// ElementSize returns the fixed payload size in bytes.
func (t *Topic) ElementSize() uint32 {
	return t.elementSize
}

// Send publishes msg as the topic's latest value. There must be exactly one
// producer per topic; concurrent producers race undetected, per the transport
// contract in spec 4.2.
func (t *Topic) Send(msg []byte) error {
	if uint32(len(msg)) != t.elementSize {
		return herr.ValidationErr("pod.Send", "message size does not match topic element size").
			WithContext("expected", t.elementSize).
			WithContext("got", len(msg))
	}
	if err := t.region.Provider.WriteAt(HeaderSize, msg); err != nil {
		return herr.IoErr("pod.Send", err)
	}
	// Release-store: publishes the payload write to any consumer that
	// observes the new sequence with an Acquire load.
	if _, err := t.region.Provider.AtomicAdd64(offSequence, 1); err != nil {
		return herr.IoErr("pod.Send", err)
	}
	return nil
}

// Consumer tracks one reader's position in a topic's sequence.
type Consumer struct {
	topic    *Topic
	lastSeen uint64
}

// NewConsumer creates a consumer handle starting at sequence 0 (no value seen).
func (t *Topic) NewConsumer() *Consumer {
	return &Consumer{topic: t}
}

// Recv returns the current payload if it is newer than what this consumer has
// already seen, or (nil, false) if no new value has been published.
func (c *Consumer) Recv() ([]byte, bool, error) {
	// Acquire-load: synchronizes-with the producer's Release-store, so a
	// subsequent payload read observes the write that preceded it.
	seq, err := c.topic.region.Provider.AtomicLoad64(offSequence)
	if err != nil {
		return nil, false, herr.IoErr("pod.Recv", err)
	}
	if seq == c.lastSeen {
		return nil, false, nil
	}

	buf := make([]byte, c.topic.elementSize)
	if err := c.topic.region.Provider.ReadAt(HeaderSize, buf); err != nil {
		return nil, false, herr.IoErr("pod.Recv", err)
	}
	// Relaxed store: only this consumer's own subsequent Recv calls observe
	// lastSeen, so no ordering with the producer is required here.
	c.lastSeen = seq
	return buf, true, nil
}

// RecvBlocking busy-spins Recv with a CPU-pause hint until a new value is
// published or ctx-style cancellation is signaled via the stop channel.
func (c *Consumer) RecvBlocking(stop <-chan struct{}) ([]byte, error) {
	for {
		msg, ok, err := c.Recv()
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}
		select {
		case <-stop:
			return nil, herr.New(herr.NotAvailable, "pod.RecvBlocking", "canceled before a new value arrived")
		default:
			runtime.Gosched()
			time.Sleep(time.Microsecond)
		}
	}
}

// LastSeen returns the sequence number this consumer has most recently read.
func (c *Consumer) LastSeen() uint64 {
	return c.lastSeen
}
