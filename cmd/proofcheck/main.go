// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Command proofcheck verifies masterchain key blocks or shard blocks against
// a configured network's trust anchor.
//
// Usage:
//
//	proofcheck -config config.yaml -mc-seq-no 12345
//	proofcheck -config config.yaml -shard-boc block.boc
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tychonet/lite-client/config"
	"github.com/tychonet/lite-client/engine"
	"github.com/tychonet/lite-client/indexer"
	"github.com/tychonet/lite-client/logging"
	"github.com/tychonet/lite-client/metrics"
	"github.com/tychonet/lite-client/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mcSeqNo := flag.Uint("mc-seq-no", 0, "masterchain key-block seq_no to verify")
	shardBoC := flag.String("shard-boc", "", "path to a shard block BoC file to verify")
	metricsAddr := flag.String("metrics-addr", "", "optional address to serve Prometheus metrics on")
	flag.Parse()

	if *mcSeqNo == 0 && *shardBoC == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -mc-seq-no or -shard-boc")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, uint32(*mcSeqNo), *shardBoC, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "proofcheck: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, mcSeqNo uint32, shardBoC, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	log, err := logging.NewLogger(&logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	logging.SetDefault(log)

	store, err := storage.OpenDefault(cfg.Storage.Name, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	client := indexer.NewHTTPClient(cfg.Network.Endpoint, cfg.Network.QueryTimeout.Std(), log)
	m := metrics.New()
	if metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(metricsAddr, m.Handler()); err != nil {
				log.Error("metrics server stopped", logging.Field{Key: "error", Value: err.Error()})
			}
		}()
	}

	eng, err := engine.New(client, store, nil, cfg.Network, log, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mcSeqNo != 0 {
		proof, err := eng.LoadKeyBlockProof(ctx, mcSeqNo)
		if err != nil {
			return fmt.Errorf("key block %d: %w", mcSeqNo, err)
		}
		id := proof.ID()
		log.Info("key block proof verified",
			logging.Field{Key: "seq_no", Value: id.SeqNo},
			logging.Field{Key: "root_hash", Value: id.RootHash.Hex()},
		)
		fmt.Printf("key block %d verified (root_hash %s)\n", id.SeqNo, id.RootHash.Hex())
	}

	if shardBoC != "" {
		boc, err := os.ReadFile(shardBoC)
		if err != nil {
			return fmt.Errorf("failed to read shard block BoC: %w", err)
		}
		if err := eng.CheckShardBlock(ctx, boc); err != nil {
			return fmt.Errorf("shard block %s: %w", shardBoC, err)
		}
		fmt.Printf("shard block %s verified\n", shardBoC)
	}
	return nil
}
