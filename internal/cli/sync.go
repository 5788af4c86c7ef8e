package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	dbaudit "github.com/mrlokans/bibliotheek/internal/database/audit"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/entrypoint"
	"github.com/mrlokans/bibliotheek/internal/syncer"
)

func newSyncCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and refresh the cache",
		Long: `Run one full sync pass: pending local changes are pushed, then every
kind is pulled from the store of record. A kind that fails does not stop
the others; the command exits non-zero when any kind failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				report := app.Syncer.SyncAll(ctx)
				if opts.json {
					if err := outputAsJSON(cmd, newSyncReportJSON(report)); err != nil {
						return err
					}
				} else if err := printSyncReport(cmd, report); err != nil {
					return err
				}
				if !report.OK() {
					return fmt.Errorf("sync failed for %s", joinKinds(report.Failed()))
				}
				return nil
			})
		},
	}
}

type kindReportJSON struct {
	Kind     entities.Kind `json:"kind"`
	Pushed   int           `json:"pushed"`
	Fetched  int           `json:"fetched"`
	Applied  int           `json:"applied"`
	Error    string        `json:"error,omitempty"`
	Duration string        `json:"duration"`
}

type syncReportJSON struct {
	PassID     string           `json:"pass_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	OK         bool             `json:"ok"`
	Kinds      []kindReportJSON `json:"kinds"`
}

func newSyncReportJSON(r syncer.SyncReport) syncReportJSON {
	out := syncReportJSON{PassID: r.PassID, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, OK: r.OK()}
	for _, k := range r.Kinds {
		kr := kindReportJSON{
			Kind:     k.Kind,
			Pushed:   k.Pushed,
			Fetched:  k.Fetched,
			Applied:  k.Applied,
			Duration: k.Duration.Round(time.Millisecond).String(),
		}
		if err := k.Err(); err != nil {
			kr.Error = err.Error()
		}
		out.Kinds = append(out.Kinds, kr)
	}
	return out
}

func printSyncReport(cmd *cobra.Command, r syncer.SyncReport) error {
	outputText(cmd, "Sync pass %s (took %s)\n", r.PassID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	t := newTable(cmd.OutOrStdout(), "KIND", "PUSHED", "FETCHED", "APPLIED", "STATUS")
	for _, k := range r.Kinds {
		status := "ok"
		if err := k.Err(); err != nil {
			status = "failed: " + err.Error()
		}
		t.row(string(k.Kind), fmt.Sprint(k.Pushed), fmt.Sprint(k.Fetched), fmt.Sprint(k.Applied), status)
	}
	return t.flush()
}

func joinKinds(kinds []entities.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

type statusJSON struct {
	Mode     string                  `json:"mode"`
	Identity string                  `json:"identity,omitempty"`
	Verified bool                    `json:"verified"`
	Remote   string                  `json:"remote"`
	Counts   map[entities.Kind]int64 `json:"counts"`
	Sync     []entities.SyncState    `json:"sync"`
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, cache and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				counts, err := app.Cache.Counts(ctx)
				if err != nil {
					return err
				}
				states, err := app.States.All(ctx)
				if err != nil {
					return err
				}

				st := statusJSON{
					Mode:     app.Session.Mode().String(),
					Identity: app.Session.Identity().Email,
					Verified: app.Bootstrap.Verified,
					Remote:   app.Config.Remote.BaseURL,
					Counts:   counts,
					Sync:     states,
				}
				if opts.json {
					return outputAsJSON(cmd, st)
				}

				outputText(cmd, "Session:  %s", st.Mode)
				if st.Identity != "" {
					outputText(cmd, " as %s", st.Identity)
				}
				outputText(cmd, "\nRemote:   %s\n\n", st.Remote)

				t := newTable(cmd.OutOrStdout(), "KIND", "CACHED", "LAST SYNC", "STATUS", "ERROR")
				byKind := make(map[entities.Kind]entities.SyncState, len(states))
				for _, s := range states {
					byKind[s.Kind] = s
				}
				for _, kind := range entities.Kinds {
					last, status, errMsg := "never", "-", ""
					if s, ok := byKind[kind]; ok {
						status = string(s.Status)
						errMsg = s.Error
						if s.LastSuccessAt != nil {
							last = s.LastSuccessAt.Format(time.RFC3339)
						}
					}
					t.row(string(kind), fmt.Sprint(counts[kind]), last, status, errMsg)
				}
				return t.flush()
			})
		},
	}
}

func newAuditCommand(opts *options) *cobra.Command {
	var (
		eventType, status, passID string
		limit                     int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent fallbacks, failures and sync outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				events, _, err := app.Audit.Events(ctx, dbaudit.Filter{
					EventType: entities.AuditEventType(eventType),
					Status:    entities.AuditStatus(status),
					PassID:    passID,
				}, limit, 0)
				if err != nil {
					return err
				}
				if opts.json {
					return outputAsJSON(cmd, events)
				}
				t := newTable(cmd.OutOrStdout(), "TIME", "TYPE", "KIND", "ACTION", "STATUS", "DETAIL")
				for _, ev := range events {
					detail := ev.Description
					if ev.ErrorMsg != "" {
						detail += ": " + ev.ErrorMsg
					}
					t.row(ev.CreatedAt.Format(time.RFC3339), string(ev.EventType), string(ev.Kind), ev.Action, string(ev.Status), detail)
				}
				return t.flush()
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "Filter by event type (read, write, sync, bootstrap, auth)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (success, degraded, failed)")
	cmd.Flags().StringVar(&passID, "pass", "", "Filter by sync pass id")
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum number of events")
	return cmd
}
