package main

import (
	"fmt"
	"io"
	"time"

	"memorymap/internal/mapview"
	"memorymap/internal/memory"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the live memory set every time it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		stop, err := c.Subscribe(cmd.Context(),
			func(ms []memory.Memory) { printSet(out, ms) },
			func(err error) { fmt.Fprintln(cmd.ErrOrStderr(), "live updates interrupted:", err) },
		)
		if err != nil {
			return err
		}
		defer stop()

		<-cmd.Context().Done()
		return nil
	},
}

func printSet(out io.Writer, ms []memory.Memory) {
	fmt.Fprintf(out, "--- %s: %d memories\n", time.Now().Format(time.TimeOnly), len(ms))
	for _, m := range ms {
		p := mapview.BuildPopup(m, false, time.Local)
		fmt.Fprintf(out, "%s\t%.5f,%.5f\t%s\t%s\n", m.ID, m.Location.Lat, m.Location.Lng, p.Date, p.PhotoLabel)
	}
}
