package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/mimic/internal/config"
	"github.com/ehrlich-b/mimic/internal/event"
	"github.com/ehrlich-b/mimic/internal/logger"
	"github.com/ehrlich-b/mimic/internal/perm"
	"github.com/ehrlich-b/mimic/internal/recorder"
	"github.com/ehrlich-b/mimic/internal/replay"
	"github.com/ehrlich-b/mimic/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "mimic",
		Short: "mimic — record and replay desktop workflows",
		Long:  "Records pointer, keyboard, clipboard, and focus activity to an event log and replays it with high fidelity.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel)
			return nil
		},
		SilenceUsage: true,
	}

	root.AddCommand(
		permissionsCmd(),
		recordCmd(),
		listCmd(),
		showCmd(),
		replayCmd(),
		deleteCmd(),
	)

	if err := root.Execute(); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func openStore() (*store.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.LogDir)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func permissionsCmd() *cobra.Command {
	var prompt bool
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Probe accessibility and input-monitoring grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := perm.Check()
			if prompt && !report.Granted() {
				report = perm.Request()
			}
			fmt.Printf("accessibility:    %s\n", grantWord(report.Accessibility))
			fmt.Printf("input monitoring: %s\n", grantWord(report.InputMonitoring))
			if !report.Granted() {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "Ask the OS to prompt for missing grants")
	return cmd
}

func grantWord(ok bool) string {
	if ok {
		return "granted"
	}
	return "missing"
}

func recordCmd() *cobra.Command {
	var name string
	var noContext bool
	cmd := &cobra.Command{
		Use:   "record -n NAME",
		Short: "Record a session until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			captureContext := *cfg.CaptureContext && !noContext
			f, path, err := st.CreateLog(name)
			if err != nil {
				return err
			}
			defer f.Close()

			rec := recorder.New(recorder.Options{
				Name:           name,
				CaptureContext: captureContext,
				Sink:           f,
			})
			w, err := rec.Start()
			if err != nil {
				return err
			}
			fmt.Printf("recording %q — ctrl-c to stop\n", name)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case <-ticker.C:
					rec.Drain(w)
				}
			}

			stats, stopErr := rec.Stop(w)
			if err := st.Add(store.Session{
				ID:             w.ID,
				Name:           w.Name,
				File:           path,
				StartedAt:      w.StartedAt,
				Events:         stats.Events,
				Duration:       stats.Duration,
				CaptureContext: w.CaptureContext,
			}); err != nil {
				return err
			}

			fmt.Printf("saved %s: %d events in %s", path, stats.Events, stats.Duration.Round(time.Millisecond))
			if stats.Dropped > 0 {
				fmt.Printf(" (%d dropped at the tap)", stats.Dropped)
			}
			fmt.Println()
			return stopErr
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Session name (required)")
	cmd.Flags().BoolVar(&noContext, "no-context", false, "Skip UI-element context probing on clicks")
	cmd.MarkFlagRequired("name")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Enumerate stored session logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.List()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEVENTS\tDURATION\tSTARTED\tFILE")
			for _, s := range sessions {
				started := ""
				if !s.StartedAt.IsZero() {
					started = s.StartedAt.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					s.Name, s.Events, s.Duration.Round(time.Second), started, s.File)
			}
			return w.Flush()
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print per-tag event counts for a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			path, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			events, skipped, err := event.ReadAll(f)
			if err != nil {
				return err
			}
			counts := make(map[event.Type]int)
			for _, e := range events {
				counts[e.Type]++
			}
			tags := make([]event.Type, 0, len(counts))
			for tag := range counts {
				tags = append(tags, tag)
			}
			sort.Slice(tags, func(i, j int) bool { return tags[i].String() < tags[j].String() })

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, tag := range tags {
				fmt.Fprintf(w, "%s\t%d\n", tag, counts[tag])
			}
			fmt.Fprintf(w, "total\t%d\n", len(events))
			if skipped > 0 {
				fmt.Fprintf(w, "skipped\t%d\n", skipped)
			}
			return w.Flush()
		},
	}
}

func replayCmd() *cobra.Command {
	var speed float64
	var dryRun, noPasteboard bool
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Replay a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			path, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			events, skipped, err := event.ReadAll(f)
			f.Close()
			if err != nil {
				return err
			}
			if skipped > 0 {
				fmt.Fprintf(os.Stderr, "warning: %d undecodable lines skipped\n", skipped)
			}
			if len(events) == 0 {
				fmt.Println("nothing to replay")
				return nil
			}

			var syn replay.Synthesizer
			if dryRun {
				syn = replay.DryRun{W: os.Stdout}
			} else {
				syn, err = replay.NewSynthesizer(noPasteboard)
				if err != nil {
					return err
				}
			}

			if speed == 0 {
				speed = cfg.ReplaySpeed
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return replay.Run(ctx, events, syn, replay.Options{Speed: speed})
		},
	}
	cmd.Flags().Float64VarP(&speed, "speed", "s", 0, "Playback speed factor (default from config, 1.0)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the schedule instead of posting events")
	cmd.Flags().BoolVar(&noPasteboard, "no-pasteboard", false, "Never use the clipboard fallback for text")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete FILE",
		Short: "Remove a stored session log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
