package cmd

import (
	"fmt"

	"github.com/rudransh-shrivastava/peer-watch/internal/node"
	"github.com/rudransh-shrivastava/peer-watch/internal/signaling"
	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	room  string
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "print the chat and event log of a room",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer store.Close(db)

		entries, err := store.NewHistoryStore(db).Recent(cmd.Context(), signaling.NormalizeRoom(historyFlags.room), historyFlags.limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Message)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.room, "room", "", "room code")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", node.DefaultConfig().HistoryLimit, "entries to print, 0 for all")
	_ = historyCmd.MarkFlagRequired("room")
}
