// Command blockflow-node wires storage, world-state, the VM, the
// validator/mempool/flow-cache collaborators and the block-flow DAG into a
// single bring-up binary, mirroring the teacher's cmd/rubin-node skeleton
// generalized from one chain to the G*G block-flow engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zheli/alephium/internal/blockflow"
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/difficulty"
	"github.com/zheli/alephium/internal/flowcache"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/mempool"
	"github.com/zheli/alephium/internal/mining"
	"github.com/zheli/alephium/internal/ports"
	"github.com/zheli/alephium/internal/storage"
	"github.com/zheli/alephium/internal/validator"
	"github.com/zheli/alephium/internal/vm"
	"github.com/zheli/alephium/internal/worldstate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("blockflow-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dataDir := fs.String("datadir", "./data", "node data directory")
	groups := fs.Int("groups", 4, "number of shard groups (G)")
	brokerStart := fs.Int("broker-from-start", 0, "first 'from' group this broker serves")
	brokerEnd := fs.Int("broker-from-end", 0, "exclusive end of the 'from' group range this broker serves (0 = groups)")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	sharedPoolCap := fs.Int("mempool-shared-cap", 10_000, "shared mempool capacity per chain")
	pendingPoolCap := fs.Int("mempool-pending-cap", 1_000, "pending mempool capacity per chain")
	rejectCacheCap := fs.Int("reject-cache-cap", 50_000, "rejected-tx dedup cache capacity")
	blockCacheCap := fs.Int("block-cache-cap", 256, "per-chain hot block cache capacity")
	headerCacheCap := fs.Int("header-cache-cap", 4_096, "global hot header cache capacity")
	stateCacheCap := fs.Int("state-cache-cap", 256, "global hot state-snapshot cache capacity")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *brokerEnd == 0 {
		*brokerEnd = *groups
	}

	log := newLogger(stdout, *logLevel)

	vcfg := validator.DefaultConfig()
	vcfg.Groups = *groups
	vcfg.BrokerFromStart = *brokerStart
	vcfg.BrokerFromEnd = *brokerEnd
	dcfg := difficulty.DefaultConfig()

	if *dryRun {
		fmt.Fprintf(stdout, "groups=%d broker=[%d,%d) datadir=%s log-level=%s\n",
			*groups, *brokerStart, *brokerEnd, *dataDir, *logLevel)
		return 0
	}

	if err := os.MkdirAll(*dataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}

	db, err := storage.Open(*dataDir + "/chaindata.bolt")
	if err != nil {
		fmt.Fprintf(stderr, "storage open failed: %v\n", err)
		return 2
	}
	defer db.Close()

	ws := worldstate.Open(db)
	machine := vm.NewMachine()
	val := validator.New(vcfg, machine)
	mem := mempool.New(*sharedPoolCap, *pendingPoolCap)
	rejects, err := mempool.NewRejectCache(int64(*rejectCacheCap))
	if err != nil {
		fmt.Fprintf(stderr, "reject cache init failed: %v\n", err)
		return 2
	}
	defer rejects.Close()
	cache := flowcache.New(*blockCacheCap, *headerCacheCap, *stateCacheCap)
	bus := ports.NewBus()

	unsub := bus.Subscribe(func(e ports.Event) {
		switch e.Kind {
		case ports.EventNewTip:
			log.Debug().Stringer("chain", e.Chain).Stringer("hash", e.Hash).Stringer("weight", e.Weight).Msg("new tip")
		case ports.EventReorg:
			log.Info().Stringer("chain", e.Chain).Int("removed", len(e.Removed)).Int("added", len(e.Added)).Msg("reorg")
		}
	})
	defer unsub()

	bf := blockflow.New(blockflow.Deps{
		Groups:     *groups,
		DB:         db,
		WorldState: ws,
		Difficulty: dcfg,
		Validator:  val,
		Mempool:    mem,
		Cache:      cache,
		Bus:        bus,
		Log:        log,
	})

	for from := 0; from < *groups; from++ {
		for to := 0; to < *groups; to++ {
			ci := hashes.ChainIndex{From: from, To: to}
			tree := bf.Tree(ci)
			if tree == nil || tree.HasGenesis() {
				continue
			}
			genesis := chain.Block{
				Header: chain.BlockHeader{
					Target: dcfg.MaxMiningTarget,
				},
			}
			// A block's chain is derived from its header hash, so vary the
			// nonce until this genesis header lands on ci.
			for hashes.FromHash(chain.HeaderHash(genesis.Header), *groups) != ci {
				genesis.Header.Nonce++
			}
			if err := bf.AddGenesisBlock(genesis); err != nil {
				fmt.Fprintf(stderr, "genesis install failed for chain %s: %v\n", ci, err)
				return 2
			}
		}
	}

	builder := mining.New(bf, mem, vcfg, dcfg, *groups, func() hashes.Timestamp {
		return hashes.Timestamp(time.Now().UnixMilli())
	})
	_ = builder

	log.Info().Int("groups", *groups).Int("broker_from_start", *brokerStart).Int("broker_from_end", *brokerEnd).Msg("blockflow-node started")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("blockflow-node stopped")
	return 0
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	parsed, perr := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if perr != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(parsed).
		With().Timestamp().Logger()
}
