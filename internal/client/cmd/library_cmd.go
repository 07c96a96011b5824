package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "manage the local media library",
}

var libraryAddCmd = &cobra.Command{
	Use:   "add path...",
	Short: "add media files to the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer store.Close(db)

		library := store.NewMediaStore(db)
		for _, path := range args {
			media, created, err := library.Register(cmd.Context(), path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", media.Name, media.MimeDescriptor)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already in library\n", media.Name)
			}
		}
		return nil
	},
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the media library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer store.Close(db)

		media, err := store.NewMediaStore(db).List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tTYPE\tSHA256")
		for _, m := range media {
			fmt.Fprintf(w, "%s\t%d\t%s\t%.12s\n", m.Name, m.Size, m.MimeDescriptor, m.Checksum)
		}
		return w.Flush()
	},
}

func init() {
	libraryCmd.AddCommand(libraryAddCmd)
	libraryCmd.AddCommand(libraryListCmd)
}
