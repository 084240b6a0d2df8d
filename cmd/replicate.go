package cmd

import (
	"context"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/journal/memjournal"
	"github.com/relex/journal-sink/sink"
	"github.com/relex/journal-sink/util"
)

type replicateCommandState struct {
	Address        string        `help:"Source address to replicate from (host:port)"`
	Config         string        `help:"Optional sink configuration file path (YAML)"`
	BlockSize      int           `help:"Data block size of the local indexed journal"`
	ReportInterval time.Duration `help:"How often to report replication progress"`
	MetricsAddr    string        `help:"The listener address to expose Prometheus metrics and debug information"`
	TestMode       bool          `help:"Use test mode config: fast retry and short timeout"`
}

var replicateCmd = replicateCommandState{
	BlockSize:      64 * 1024,
	ReportInterval: 10 * time.Second,
	MetricsAddr:    ":9335",
}

func (cmd *replicateCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}

	cfg := sink.Config{Address: cmd.Address}
	if cmd.Config != "" {
		if err := util.UnmarshalYamlFile(cmd.Config, &cfg); err != nil {
			logger.Fatalf("failed to load config %s: %s", cmd.Config, err.Error())
		}
	}

	msrv := util.LaunchMetricsListener(cmd.MetricsAddr)

	journal := memjournal.NewIndexed(cmd.Address, cmd.BlockSize)
	snk, err := sink.New(logger.Root(), cfg, journal, promreg.NewMetricFactory("journalsink_", nil, nil))
	if err != nil {
		logger.Fatalf("failed to create sink: %s", err.Error())
	}
	launchCloseOnSignal(snk)
	launchProgressReporter(snk, cmd.ReportInterval)

	tailer, err := snk.CreateTailer()
	if err != nil {
		logger.Fatalf("failed to create tailer: %s", err.Error())
	}

	for {
		ok, aerr := tailer.Advance()
		if aerr != nil {
			logger.Errorf("replication aborted: %s", aerr.Error())
			break
		}
		if !ok {
			if snk.Closed().Peek() {
				break
			}
			continue
		}
		tailer.Finish()
	}

	snk.Close()
	logger.Infof("replicated %d records in total", snk.Size())
	if err := msrv.Shutdown(context.Background()); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}

func launchProgressReporter(snk *sink.Sink, interval time.Duration) {
	go func() {
		for {
			if snk.Closed().Wait(interval) {
				return
			}
			logger.Infof("replicated so far: size=%d lastWrittenIndex=%d", snk.Size(), snk.LastWrittenIndex())
		}
	}()
}
