package sink

import (
	"fmt"
	"net"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/wire"
)

// Config defines the source connection section in config file
type Config struct {
	Address        string            `yaml:"address"`        // host:port of the source to replicate from
	MinBufferSize  datasize.ByteSize `yaml:"minBufferSize"`  // receive buffer capacity, also the TCP receive-buffer hint
	ReconnectDelay time.Duration     `yaml:"reconnectDelay"` // pause between reconnection attempts
}

// VerifyConfig verifies the configuration and fills defaults for unspecified fields
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Address) == 0 {
		return fmt.Errorf(".address is unspecified")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return fmt.Errorf(".address is invalid: %w", err)
	}

	if cfg.MinBufferSize == 0 {
		cfg.MinBufferSize = datasize.ByteSize(defs.SinkMinBufferSize)
	}
	if cfg.MinBufferSize.Bytes() < wire.HeaderSize+8 {
		return fmt.Errorf(".minBufferSize must hold at least a frame header and look-ahead (%d bytes)", wire.HeaderSize+8)
	}

	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defs.SinkReconnectDelay
	}
	if cfg.ReconnectDelay < 0 {
		return fmt.Errorf(".reconnectDelay is invalid: %s", cfg.ReconnectDelay)
	}
	return nil
}
