package node

import (
	"github.com/rudransh-shrivastava/peer-watch/internal/playback"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
)

type Config struct {
	Transfer transfer.Config
	Playback playback.Config
	// HistoryLimit bounds the entries printed for a room.
	HistoryLimit int
}

func DefaultConfig() Config {
	return Config{
		Transfer:     transfer.DefaultConfig(),
		Playback:     playback.DefaultConfig(),
		HistoryLimit: 50,
	}
}
