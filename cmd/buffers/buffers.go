package buffers

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/soundbuffer"
)

const decodeConcurrency = 4

// Command creates a command that decodes sound files and lists the buffers.
func Command() *cobra.Command {
	var (
		sortBy    string
		longNames bool
	)

	cmd := &cobra.Command{
		Use:   "buffers [sound files...]",
		Short: "Decode sound files and list the resulting buffers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := devicepool.ParseSortBy(sortBy)
			if err != nil {
				return err
			}

			m := devicepool.New(conf.GetSettings())
			loader := soundbuffer.NewLoader(m.Resources())
			defer loader.Wait()

			waves := make([]*soundbuffer.Wave, len(args))
			for i, path := range args {
				waves[i] = soundbuffer.NewWave(path)
			}
			if _, err := loader.LoadAll(cmd.Context(), waves, decodeConcurrency); err != nil {
				return err
			}

			listing := m.Resources().ListSoundBuffers(order, longNames)
			out := cmd.OutOrStdout()
			for _, b := range listing.Buffers {
				fmt.Fprintln(out, b.Description)
			}
			fmt.Fprintf(out, "%d buffers, %.2fkb total\n", len(listing.Buffers), float64(listing.TotalBytes)/1024)
			return nil
		},
	}

	cmd.Flags().StringVar(&sortBy, "sort", "size", "Sort order: size or name")
	cmd.Flags().BoolVar(&longNames, "long", false, "Show full paths instead of names")

	return cmd
}
