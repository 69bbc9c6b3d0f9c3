package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для управления расписаниями заданий.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage job schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleSetCmd(clientFn, outputFn),
		newSyncCmd(clientFn, outputFn),
	)

	return cmd
}

// NewJobCmd создаёт команду ручного запуска задания.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Run jobs on demand",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "trigger KIND",
		Short: "Queue a job kind (import, match, execute, export, plugins.sync) for immediate run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().TriggerJob(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Job %s queued", args[0]))
			return nil
		},
	})

	return cmd
}

func scheduleRows(schedules []ScheduleResponse) [][]string {
	rows := make([][]string, len(schedules))
	for i, s := range schedules {
		ranges := make([]string, len(s.Windows))
		for j, w := range s.Windows {
			ranges[j] = formatWindow(w)
		}
		rows[i] = []string{s.Kind, s.Mode, strings.Join(ranges, " ")}
	}
	return rows
}

var scheduleHeaders = []string{"KIND", "MODE", "RANGES"}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules of all job kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules()
			if err != nil {
				return err
			}

			outputFn().Print(scheduleHeaders, scheduleRows(schedules), schedules)
			return nil
		},
	}
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show KIND",
		Short: "Show the schedule of a job kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().GetSchedule(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(scheduleHeaders, scheduleRows([]ScheduleResponse{*schedule}), schedule)
			return nil
		},
	}
}

func newScheduleSetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var mode string
	var ranges []string

	cmd := &cobra.Command{
		Use:   "set KIND",
		Short: "Set mode and time windows of a job kind",
		Long: `Set the schedule of a job kind.

Windows are given as DAYFROM-DAYTO,HH:MM-HH:MM with 1 = Monday ... 7 = Sunday,
for example --range 1-5,08:00-18:00. A window whose end is before its start
spans midnight.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := UpdateScheduleRequest{Mode: mode, Windows: []Window{}}
			for _, r := range ranges {
				w, err := parseWindow(r)
				if err != nil {
					return err
				}
				req.Windows = append(req.Windows, w)
			}

			schedule, err := clientFn().UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule of %s updated", schedule.Kind))
			out.Print(scheduleHeaders, scheduleRows([]ScheduleResponse{*schedule}), schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Mode: ON, OFF or RANGES")
	cmd.Flags().StringArrayVar(&ranges, "range", nil, "Time window DAYFROM-DAYTO,HH:MM-HH:MM (repeatable)")
	_ = cmd.MarkFlagRequired("mode")

	return cmd
}

func newSyncCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Show or change the plugin rescan trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			sync, err := clientFn().GetSync()
			if err != nil {
				return err
			}
			printSync(outputFn(), sync)
			return nil
		},
	}

	var req UpdateSyncRequest
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the plugin rescan trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			sync, err := clientFn().UpdateSync(req)
			if err != nil {
				return err
			}
			printSync(outputFn(), sync)
			return nil
		},
	}
	set.Flags().BoolVar(&req.Enabled, "enabled", true, "Enable the trigger")
	set.Flags().IntVar(&req.IntervalSec, "interval", 0, "Interval in seconds")
	set.Flags().StringVar(&req.Cron, "cron", "", "Cron expression (takes precedence over --interval)")

	cmd.AddCommand(set)
	return cmd
}

func printSync(out *Output, s *SyncResponse) {
	interval := ""
	if s.IntervalSec > 0 {
		interval = strconv.Itoa(s.IntervalSec) + "s"
	}
	out.Print(
		[]string{"ENABLED", "INTERVAL", "CRON", "LAST_RUN", "NEXT_RUN"},
		[][]string{{strconv.FormatBool(s.Enabled), interval, s.Cron, s.LastRun, s.NextRun}},
		s,
	)
}

func formatWindow(w Window) string {
	return fmt.Sprintf("%d-%d,%s-%s", w.DayFrom, w.DayTo, w.TimeFrom, w.TimeTo)
}

// parseWindow разбирает окно вида 1-5,08:00-18:00. Значения проверяет API.
func parseWindow(s string) (Window, error) {
	days, clock, ok := strings.Cut(s, ",")
	if !ok {
		return Window{}, fmt.Errorf("invalid range %q, expected DAYFROM-DAYTO,HH:MM-HH:MM", s)
	}

	dayFrom, dayTo, ok := strings.Cut(days, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid days in range %q", s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(dayFrom))
	if err != nil {
		return Window{}, fmt.Errorf("invalid days in range %q: %w", s, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(dayTo))
	if err != nil {
		return Window{}, fmt.Errorf("invalid days in range %q: %w", s, err)
	}

	timeFrom, timeTo, ok := strings.Cut(clock, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid times in range %q", s)
	}

	return Window{
		DayFrom:  from,
		DayTo:    to,
		TimeFrom: strings.TrimSpace(timeFrom),
		TimeTo:   strings.TrimSpace(timeTo),
	}, nil
}
