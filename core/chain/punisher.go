package chain

import "github.com/riscvlabs/corechain/core/errkind"

// LoggingPunisher is a PeerPunisher that only logs, for nodes without a
// peer-scoring/networking layer wired in yet.
type LoggingPunisher struct {
	log interface {
		Warn(msg string, ctx ...interface{})
	}
}

// NewLoggingPunisher builds a LoggingPunisher over the given logger.
func NewLoggingPunisher(log interface {
	Warn(msg string, ctx ...interface{})
}) *LoggingPunisher {
	return &LoggingPunisher{log: log}
}

func (p *LoggingPunisher) Punish(peerID string, kind errkind.Kind) {
	p.log.Warn("peer punished", "peer", peerID, "kind", kind)
}
