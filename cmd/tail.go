package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/sink"
	"github.com/relex/journal-sink/util"
	"github.com/relex/journal-sink/wire"
)

type tailCommandState struct {
	Address     string `help:"Source address to replicate from (host:port)"`
	Config      string `help:"Optional sink configuration file path (YAML)"`
	From        string `help:"Position to start from: 'start', 'end', or a record index"`
	Hex         bool   `help:"Print record payloads as hex instead of text"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information"`
	TestMode    bool   `help:"Use test mode config: fast retry and short timeout"`
}

var tailCmd = tailCommandState{
	From:        "end",
	MetricsAddr: ":9335",
}

func (cmd *tailCommandState) run(args []string) {
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

	snk, err := sink.New(logger.Root(), cfg, nil, promreg.NewMetricFactory("journalsink_", nil, nil))
	if err != nil {
		logger.Fatalf("failed to create sink: %s", err.Error())
	}
	launchCloseOnSignal(snk)

	tailer, err := snk.CreateTailer()
	if err != nil {
		logger.Fatalf("failed to create tailer: %s", err.Error())
	}

	if ok, perr := tailer.MoveToIndex(parseFromPosition(cmd.From)); perr != nil {
		logger.Fatalf("failed to position: %s", perr.Error())
	} else if !ok {
		logger.Warnf("position '%s' not confirmed by source", cmd.From)
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
		if cmd.Hex {
			fmt.Printf("%d: %s\n", tailer.Index(), hex.EncodeToString(tailer.Bytes()))
		} else {
			fmt.Printf("%d: %s\n", tailer.Index(), tailer.Bytes())
		}
		tailer.Finish()
	}

	snk.Close()
	if err := msrv.Shutdown(context.Background()); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}

func parseFromPosition(from string) int64 {
	switch from {
	case "start":
		return wire.RequestFromStart
	case "end", "":
		return wire.RequestFromEnd
	}
	index, err := strconv.ParseInt(from, 10, 64)
	if err != nil || index < 0 {
		logger.Fatalf("invalid --from position '%s': expecting 'start', 'end' or a record index", from)
	}
	return index
}

func launchCloseOnSignal(snk *sink.Sink) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("received signal %s, closing", sig)
		snk.Close()
	}()
}
