package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/delivery"
	"slidecast/packages/backend/pipeline"
	"slidecast/packages/backend/slide"
)

func newExportCmd(a *app) *cobra.Command {
	var fast bool
	cmd := &cobra.Command{
		Use:   "export DECK",
		Short: "Record a narrated video of a deck into the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fast {
				a.v.Set("video.realtime", false)
			}
			cfg, c, deck, err := a.session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeSession(c)

			result, err := c.Exporter.Export(cmd.Context(), "", deck, delivery.NewFileSink(cfg.Output.Dir))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d slides, %s)\n",
				result.Receipt.Location, result.Slides, time.Duration(result.DurationMs)*time.Millisecond)
			return nil
		},
	}

	cmd.Flags().String("out", "", "output directory")
	cmd.Flags().String("container", "", "video container (mp4, webm)")
	cmd.Flags().String("encoder", "", "video encoder (ffmpeg, memory)")
	cmd.Flags().Int("width", 0, "frame width")
	cmd.Flags().Int("height", 0, "frame height")
	cmd.Flags().Int("fps", 0, "frames per second")
	cmd.Flags().BoolVar(&fast, "fast", false, "render as fast as possible instead of in real time")
	a.bind(cmd, "output.dir", "out")
	a.bind(cmd, "video.container", "container")
	a.bind(cmd, "video.encoder", "encoder")
	a.bind(cmd, "video.width", "width")
	a.bind(cmd, "video.height", "height")
	a.bind(cmd, "video.fps", "fps")
	return cmd
}

func newWAVCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "wav DECK",
		Short: "Write the combined narration track of a deck as a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, deck, err := a.session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeSession(c)

			plan, err := c.Exporter.Prepare(cmd.Context(), pipeline.NewExportID(), deck)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = delivery.FileName(deck.Subject, time.Now(), "wav")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := audio.WriteWAV(f, plan.Audio); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d frames at %d Hz)\n", path, plan.Audio.Frames(), plan.Audio.SampleRate)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <subject>-<epoch-ms>.wav)")
	return cmd
}

type durationsOutput struct {
	Slides  []pipeline.Narration `json:"slides"`
	TotalMs int64                `json:"totalMs"`
}

func newDurationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "durations DECK",
		Short: "Print the narration duration of every slide as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, deck, err := a.session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeSession(c)

			narrations, err := c.Exporter.Narrate(cmd.Context(), pipeline.NewExportID(), deck)
			if err != nil {
				return err
			}
			tl, err := pipeline.ComposeTimeline(narrations, c.Exporter.Config().Timeline)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(durationsOutput{Slides: narrations, TotalMs: tl.TotalMs})
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of deck files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := slide.Schema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
