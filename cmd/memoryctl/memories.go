package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"memorymap/internal/blob"
	"memorymap/internal/mapview"
	"memorymap/internal/memory"
	"memorymap/internal/shell"

	"github.com/spf13/cobra"
)

var (
	latFlag    float64
	lngFlag    float64
	storyFlag  string
	photoFlags []string
	keyFlag    string
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Share a memory at a location",
	Long: `Starts a session, authorizes it with --key, uploads the photos and saves
the memory. Photos that fail to upload are skipped. At most five photos are sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if storyFlag == "" {
			return errors.New("--story is required")
		}
		files, err := readPhotos(photoFlags)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		sh := shell.New(c, nopRenderer{}, nil, newLogger())
		defer sh.Close()

		ctx := cmd.Context()
		if err := sh.Start(ctx); err != nil {
			return err
		}
		if err := sh.Authorize(ctx, keyFlag); err != nil {
			return err
		}
		sh.View().Click(memory.Location{Lat: latFlag, Lng: lngFlag})
		if sh.Snapshot().State != shell.LocationSelected {
			return fmt.Errorf("invalid location %v,%v", latFlag, lngFlag)
		}
		if err := sh.Submit(ctx, storyFlag, files); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Memory saved.")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteMemory(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Memory %s deleted.\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memories, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ms, err := c.ListMemories(cmd.Context())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(cmd, ms)
		}
		for _, m := range ms {
			p := mapview.BuildPopup(m, false, time.Local)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.5f,%.5f\t%s\t%d photo(s)\t%s\n",
				m.ID, m.Location.Lat, m.Location.Lng, p.Date, p.PhotoCount, m.Story)
		}
		return nil
	},
}

func readPhotos(paths []string) ([]blob.File, error) {
	files := make([]blob.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read photo: %w", err)
		}
		files = append(files, blob.File{
			Name:        filepath.Base(p),
			ContentType: http.DetectContentType(data),
			Data:        data,
		})
	}
	return files, nil
}

// nopRenderer is used where nothing is drawn.
type nopRenderer struct{}

func (nopRenderer) ClearMarkers() {}
func (nopRenderer) AddMarker(mapview.Marker) {}
func (nopRenderer) PlaceTransient(memory.Location) {}
func (nopRenderer) RemoveTransient() {}
func (nopRenderer) PanTo(memory.Location) {}

func initMemoriesCmd() {
	postCmd.Flags().Float64Var(&latFlag, "lat", 0, "latitude")
	postCmd.Flags().Float64Var(&lngFlag, "lng", 0, "longitude")
	postCmd.Flags().StringVar(&storyFlag, "story", "", "the story to share")
	postCmd.Flags().StringArrayVar(&photoFlags, "photo", nil, "photo file (repeatable)")
	postCmd.Flags().StringVar(&keyFlag, "key", "", "authorization key")
	_ = postCmd.MarkFlagRequired("lat")
	_ = postCmd.MarkFlagRequired("lng")
	_ = postCmd.MarkFlagRequired("key")

	listCmd.Flags().Bool("json", false, "print as JSON")
}
