// Package snowflake generates time-ordered int64 IDs for membership requests.
//
// Layout (63 bits): 41 bits milliseconds since Epoch, 5 bits datacenter,
// 5 bits worker, 12 bits sequence. IDs from one generator are strictly
// increasing, so ordering by ID matches submission order.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

// Epoch 2025-01-01 00:00:00 UTC in milliseconds.
const Epoch int64 = 1735689600000

const (
	datacenterBits = 5
	workerBits     = 5
	sequenceBits   = 12

	MaxDatacenterID = -1 ^ (-1 << datacenterBits)
	MaxWorkerID     = -1 ^ (-1 << workerBits)
	sequenceMask    = -1 ^ (-1 << sequenceBits)

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits

	// maxBackwardsWait clock drift tolerated before NextID gives up
	maxBackwardsWait = 5 * time.Millisecond
)

var (
	ErrInvalidWorkerID     = errors.New("worker ID out of range")
	ErrInvalidDatacenterID = errors.New("datacenter ID out of range")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

type Generator struct {
	mu sync.Mutex

	datacenterID int64
	workerID     int64
	now          func() time.Time

	sequence      int64
	lastTimestamp int64
}

func NewGenerator(datacenterID, workerID int64) (*Generator, error) {
	if datacenterID < 0 || datacenterID > MaxDatacenterID {
		return nil, ErrInvalidDatacenterID
	}
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{datacenterID: datacenterID, workerID: workerID, now: time.Now}, nil
}

// NextID returns the next ID. Small backwards clock steps are waited out;
// larger ones fail with ErrClockMovedBackwards.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.millis()
	if ts < g.lastTimestamp {
		if time.Duration(g.lastTimestamp-ts)*time.Millisecond > maxBackwardsWait {
			return 0, ErrClockMovedBackwards
		}
		ts = g.waitUntil(g.lastTimestamp)
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ts = g.waitUntil(g.lastTimestamp + 1)
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	return (ts-Epoch)<<timestampShift |
		g.datacenterID<<datacenterShift |
		g.workerID<<workerShift |
		g.sequence, nil
}

func (g *Generator) millis() int64 {
	return g.now().UnixMilli()
}

func (g *Generator) waitUntil(target int64) int64 {
	ts := g.millis()
	for ts < target {
		time.Sleep(100 * time.Microsecond)
		ts = g.millis()
	}
	return ts
}

// Parts is a decoded ID.
type Parts struct {
	Time         time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

func Parse(id int64) Parts {
	return Parts{
		Time:         time.UnixMilli((id >> timestampShift) + Epoch).UTC(),
		DatacenterID: (id >> datacenterShift) & MaxDatacenterID,
		WorkerID:     (id >> workerShift) & MaxWorkerID,
		Sequence:     id & sequenceMask,
	}
}
