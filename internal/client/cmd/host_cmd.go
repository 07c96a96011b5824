package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/peer-watch/internal/signaling"
	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
	"github.com/spf13/cobra"
)

var hostFlags struct {
	room      string
	signalURL string
	name      string
}

var hostCmd = &cobra.Command{
	Use:   "host media",
	Short: "share a media file with a room",
	Long: `share a media file with a room. media is a path or the name of a
file already in the library; a new path is added to the library.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer store.Close(db)

		media, err := resolveMedia(cmd, store.NewMediaStore(db), args[0])
		if err != nil {
			return err
		}

		src, err := transfer.OpenFileSource(media.Path, media.MimeDescriptor)
		if err != nil {
			return err
		}
		defer src.Close()

		room := hostFlags.room
		if room == "" {
			room = signaling.NewRoomCode()
		}
		name := hostFlags.name
		if name == "" {
			name = defaultName()
		}

		log.Infof("Hosting %s (%d bytes, %s)", media.Name, media.Size, media.MimeDescriptor)
		fmt.Fprintf(cmd.OutOrStdout(), "Share this room code: %s\n", signaling.NormalizeRoom(room))

		return runParty(ctx, partyOptions{
			Room:      room,
			SignalURL: hostFlags.signalURL,
			Name:      name,
			Source:    src,
			History:   store.NewHistoryStore(db),
			Log:       log,
			In:        cmd.InOrStdin(),
			Out:       cmd.OutOrStdout(),
		})
	},
}

func resolveMedia(cmd *cobra.Command, library *store.MediaStore, arg string) (store.Media, error) {
	if _, err := os.Stat(arg); err == nil {
		media, _, err := library.Register(cmd.Context(), arg)
		return media, err
	}

	media, err := library.Get(cmd.Context(), arg)
	if errors.Is(err, store.ErrNotFound) {
		return store.Media{}, fmt.Errorf("%s is neither a file nor a library entry", arg)
	}
	return media, err
}

func init() {
	hostCmd.Flags().StringVar(&hostFlags.room, "room", "", "room code (generated when empty)")
	hostCmd.Flags().StringVar(&hostFlags.signalURL, "signal", envOr("PEER_WATCH_SIGNAL", "ws://localhost:8080/"), "signaling relay URL")
	hostCmd.Flags().StringVar(&hostFlags.name, "name", "", "display name in the room")
}
