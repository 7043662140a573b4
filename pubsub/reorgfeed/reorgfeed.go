// Package reorgfeed fans chain reorganization and new-tip events out to
// optional external sinks: a Kafka topic (github.com/Shopify/sarama) and
// an InfluxDB measurement (github.com/influxdata/influxdb's v1 client),
// the way klaytn's chaindatafetcher publishes block events to Kafka for
// downstream consumers. Both sinks default off; a Feed with neither
// configured is a cheap no-op.
package reorgfeed

import (
	"encoding/json"
	"time"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/core/snapshot"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/log"
)

// ReorgEvent is the payload published for every accepted reorg or
// single-block extension.
type ReorgEvent struct {
	DetachedCount int    `json:"detached_count"`
	AttachedCount int    `json:"attached_count"`
	TipNumber     uint64 `json:"tip_number"`
	TipHash       string `json:"tip_hash"`
	At            int64  `json:"at_unix"`
}

// Sink receives published events. Publish must not block the caller for
// long; both implementations here are fire-and-forget from the caller's
// perspective.
type Sink interface {
	Publish(ev ReorgEvent) error
	Close() error
}

// Feed fans a single reorg/new-block notification out to every
// configured sink. The zero Feed (no sinks) is valid and does nothing.
type Feed struct {
	sinks []Sink
	log   log.Logger
}

// New builds a Feed over the given sinks, skipping any nil entries so
// callers can pass the result of an optional constructor directly.
func New(sinks ...Sink) *Feed {
	f := &Feed{log: log.NewModuleLogger(log.PubSub)}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// NotifyReorg publishes one event summarizing a completed reorg (or a
// plain single-block extension, when detached is empty) against the
// snapshot the reconciler just published. It matches chain.PoolNotifier's
// NotifyReorg signature so a Feed can be handed to anything expecting
// that collaborator alongside (or instead of) the transaction pool.
func (f *Feed) NotifyReorg(detached, attached []*types.Block, _ []common.ProposalShortID, snap *snapshot.Snapshot) {
	f.publish(ReorgEvent{
		DetachedCount: len(detached),
		AttachedCount: len(attached),
		TipNumber:     snap.TipHeader.Number,
		TipHash:       snap.TipHeader.Hash().Hex(),
	})
}

// NotifyNewBlock is a no-op: the reconciler always calls NotifyReorg
// first on the same commit with the same snapshot, so publishing here
// too would report every committed block twice.
func (f *Feed) NotifyNewBlock(snap *snapshot.Snapshot) {}

// NotifyUncle is a no-op: uncle blocks don't change the published tip,
// so there is nothing external sinks need to hear about.
func (f *Feed) NotifyUncle(*types.BlockExt) {}

func (f *Feed) publish(ev ReorgEvent) {
	if len(f.sinks) == 0 {
		return
	}
	ev.At = nowUnix()
	for _, s := range f.sinks {
		if err := s.Publish(ev); err != nil {
			f.log.Warn("reorgfeed: sink publish failed", "error", err)
		}
	}
}

// Close shuts every configured sink down, returning the first error
// encountered but attempting all of them regardless.
func (f *Feed) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func nowUnix() int64 { return time.Now().Unix() }

func marshalEvent(ev ReorgEvent) ([]byte, error) { return json.Marshal(ev) }
