package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	langpkg "autosub/internal/language"
	"autosub/internal/media/ffprobe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Show the stream profile of a container file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			inspector := ffprobe.NewInspector(cfg.FFprobeBinary())
			profile, err := inspector.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Container: %s\n", profile.Container)

			if len(profile.AudioTracks) > 0 {
				rows := make([][]string, 0, len(profile.AudioTracks))
				for _, track := range profile.AudioTracks {
					rows = append(rows, []string{
						fmt.Sprintf("%d", track.StreamIndex),
						strings.ToUpper(track.Codec),
						fmt.Sprintf("%d", track.Channels),
						langpkg.DisplayName(track.Language),
						track.Title,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stream", "Codec", "Channels", "Language", "Title"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft}))
			}

			if len(profile.SubtitleTracks) > 0 {
				rows := make([][]string, 0, len(profile.SubtitleTracks))
				for _, track := range profile.SubtitleTracks {
					forced := ""
					if track.Forced {
						forced = "yes"
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", track.StreamIndex),
						strings.ToUpper(track.Codec),
						langpkg.DisplayName(track.Language),
						forced,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stream", "Codec", "Language", "Forced"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			} else {
				fmt.Fprintln(out, "No embedded subtitle tracks")
			}

			if profile.HasDTS() {
				fmt.Fprintf(out, "DTS audio tracks: %d\n", profile.DTSTrackCount)
			}
			target := cfg.Subtitles.Language
			if profile.HasSubtitleLanguage(target) {
				fmt.Fprintf(out, "Already has %s subtitles\n", langpkg.DisplayName(target))
			} else {
				fmt.Fprintf(out, "Missing %s subtitles\n", langpkg.DisplayName(target))
			}
			return nil
		},
	}
}
