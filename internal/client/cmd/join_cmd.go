package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rudransh-shrivastava/peer-watch/internal/buffer"
	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
	"github.com/spf13/cobra"
)

var joinFlags struct {
	room      string
	signalURL string
	name      string
	from      string
	out       string
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "join a room and watch",
	Long: `join a room, receive the shared media and keep playback in step.
stdin accepts play, pause, seek <seconds>, status, peers and quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer store.Close(db)

		var newSink transfer.SinkFactory
		if joinFlags.out != "" {
			f, err := os.Create(joinFlags.out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", joinFlags.out, err)
			}
			defer f.Close()
			newSink = spillSink(f)
		}

		name := joinFlags.name
		if name == "" {
			name = defaultName()
		}

		return runParty(ctx, partyOptions{
			Room:        joinFlags.room,
			SignalURL:   joinFlags.signalURL,
			Name:        name,
			RequestFrom: joinFlags.from,
			NewSink:     newSink,
			History:     store.NewHistoryStore(db),
			Log:         log,
			In:          cmd.InOrStdin(),
			Out:         cmd.OutOrStdout(),
		})
	},
}

// spillSink buffers in memory and mirrors every applied byte into f. Each
// new session starts the file over.
func spillSink(f *os.File) transfer.SinkFactory {
	var mu sync.Mutex
	return func() *buffer.Sink {
		mu.Lock()
		_ = f.Truncate(0)
		_, _ = f.Seek(0, 0)
		mu.Unlock()

		cfg := buffer.DefaultMemoryConfig()
		cfg.Spill = f
		return buffer.NewSink(buffer.NewMemoryHost(cfg), buffer.DefaultConfig())
	}
}

func init() {
	joinCmd.Flags().StringVar(&joinFlags.room, "room", "", "room code")
	joinCmd.Flags().StringVar(&joinFlags.signalURL, "signal", envOr("PEER_WATCH_SIGNAL", "ws://localhost:8080/"), "signaling relay URL")
	joinCmd.Flags().StringVar(&joinFlags.name, "name", "", "display name in the room")
	joinCmd.Flags().StringVar(&joinFlags.from, "from", "*", "peer to request media from (* for every peer)")
	joinCmd.Flags().StringVar(&joinFlags.out, "out", "", "write the received media to this file")
	_ = joinCmd.MarkFlagRequired("room")
}
