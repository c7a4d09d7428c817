// Package ports defines the typed seams between the core block-flow engine
// and the external collaborators spec §1 declares out of scope: peer
// discovery/gossip, the JSON/REST/WS surface, wallet key storage, metrics
// and logging. The engine only ever depends on these interfaces, never on
// a concrete networking or RPC package, mirroring the teacher's
// node/p2p message-kind enumeration style generalized to an explicit
// command/event boundary (spec §9: "explicit typed commands for
// request/response").
package ports

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

// EventKind tags one of the observability events enumerated in spec §6.
type EventKind string

const (
	EventNewTip           EventKind = "NewTip"
	EventReorg            EventKind = "Reorg"
	EventSyncedStatus     EventKind = "SyncedStatus"
	EventPeerMisbehavior  EventKind = "PeerMisbehavior"
	EventBroadcastBlock   EventKind = "BroadcastBlock"
	EventBroadcastTx      EventKind = "BroadcastTx"
)

// Event is one observability notification the core engine emits for
// consumption by the network/RPC/metrics collaborators.
type Event struct {
	Kind EventKind

	// NewTip / Reorg
	Chain   hashes.ChainIndex
	Hash    hashes.Hash
	Weight  hashes.Weight
	Removed []hashes.Hash
	Added   []hashes.Hash

	// SyncedStatus
	Synced bool

	// PeerMisbehavior
	MisbehaviorKind string
	PeerAddress     string

	// BroadcastBlock / BroadcastTx
	Block    *chain.Block
	Origin   string
	TxHashes []hashes.Hash
}

// EventBus is the publish/subscribe seam consuming collaborators attach
// to (spec §9: "a publish/subscribe bus for the enumerated events").
// Subscribe returns an unsubscribe function.
type EventBus interface {
	Publish(Event)
	Subscribe(func(Event)) (unsubscribe func())
}

// Bus is a minimal in-process EventBus, sufficient for tests and for wiring
// a single node's own RPC/metrics collaborators; a networked node replaces
// it with one backed by the wire protocol.
type Bus struct {
	subs []func(Event)
}

// NewBus returns an empty in-process event bus.
func NewBus() *Bus { return &Bus{} }

// Publish fans e out to every current subscriber, synchronously and in
// subscription order.
func (b *Bus) Publish(e Event) {
	for _, fn := range b.subs {
		fn(e)
	}
}

// Subscribe registers fn for every future Publish call.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.subs = append(b.subs, fn)
	idx := len(b.subs) - 1
	return func() {
		b.subs[idx] = func(Event) {}
	}
}

// BanScorer accumulates misbehavior penalties per peer address, the seam
// spec §6's PeerMisbehavior event feeds (mirrors the teacher's
// node/p2p/banscore.go, kept as an external-collaborator interface since
// networking itself is out of scope here).
type BanScorer interface {
	Penalize(address string, kind string, weight int)
	Score(address string) int
	ShouldBan(address string) bool
}

// BlockFetcher is the seam for requesting missing dependencies from the
// network collaborator when a block is parked as HeaderIncomplete (spec §7
// tier 3).
type BlockFetcher interface {
	FetchBlock(hash hashes.Hash) error
	FetchHeader(hash hashes.Hash) error
}

// Broadcaster is the seam for announcing newly accepted blocks/txs to
// peers (spec §4.2's sync/broadcast port, §2 item 11).
type Broadcaster interface {
	BroadcastBlock(block chain.Block, origin string)
	BroadcastTxHashes(hashes []hashes.Hash)
}

// Command tags one of the inbound requests spec §6 enumerates as
// "Consumed commands".
type CommandKind string

const (
	CommandAddBlock    CommandKind = "AddBlock"
	CommandAddTx       CommandKind = "AddTx"
	CommandGetTemplate CommandKind = "GetTemplate"
	CommandGetBalance  CommandKind = "GetBalance"
	CommandGetTxStatus CommandKind = "GetTxStatus"
)
