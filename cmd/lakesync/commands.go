package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exploopio/lakesync/pkg/datalake"
	"github.com/exploopio/lakesync/pkg/ingest"
	"github.com/exploopio/lakesync/pkg/kev"
)

var (
	migrateStatus   bool
	migrateRollback int
	kevURL          string
	indexName       string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Load a data-lake export into the store",
	}
	ingestKEVCmd = &cobra.Command{
		Use:   "kev",
		Short: "Download the CISA Known Exploited Vulnerabilities catalog",
		Args:  cobra.NoArgs,
		RunE:  runIngestKEV,
	}

	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Manage the search indices",
	}
	indexSyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Index rows changed since their last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, false)
		},
	}
	indexRebuildCmd = &cobra.Command{
		Use:   "rebuild",
		Short: "Delete and rebuild the search indices from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, true)
		},
	}
)

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list applied migrations and exit")
	migrateCmd.Flags().IntVar(&migrateRollback, "rollback", -1, "roll back to this schema version")

	ingestKEVCmd.Flags().StringVar(&kevURL, "url", "", "catalog URL (overrides config)")
	ingestCmd.AddCommand(ingestKEVCmd)
	for _, kind := range []datalake.Kind{
		datalake.KindOrganizations, datalake.KindVulnScans, datalake.KindTickets, datalake.KindDomains,
	} {
		ingestCmd.AddCommand(&cobra.Command{
			Use:   string(kind) + " <uri>",
			Short: fmt.Sprintf("Load a %s export (local path or gs://bucket/object)", kind),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runIngest(cmd, string(kind), args[0])
			},
		})
	}

	for _, c := range []*cobra.Command{indexSyncCmd, indexRebuildCmd} {
		c.Flags().StringVar(&indexName, "index", "all", "organizations, domains or all")
	}
	indexCmd.AddCommand(indexSyncCmd, indexRebuildCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if migrateRollback >= 0 {
		if err := st.Rollback(ctx, migrateRollback); err != nil {
			return err
		}
	}
	if migrateStatus || migrateRollback >= 0 {
		applied, err := st.AppliedMigrations(ctx)
		if err != nil {
			return err
		}
		return printJSON(applied)
	}

	version, err := st.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("schema at version %d", version)
	return nil
}

func runIngest(cmd *cobra.Command, kindName, uri string) error {
	ctx := cmd.Context()
	kind, err := datalake.ParseKind(kindName)
	if err != nil {
		return err
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	syncer := datalake.New(st, &datalake.Config{
		NonSectorIDs: a.cfg.Ingest.NonSectorIDs,
		Logger:       a.logger.Named("ingest"),
		Metrics:      a.metrics,
	})
	if err := syncer.Start(ctx); err != nil {
		return err
	}
	summary, err := syncer.Ingest(ctx, kind, uri, &ingest.SourceOptions{CredentialsFile: a.cfg.Ingest.CredentialsFile})
	if stopErr := syncer.Stop(ctx); err == nil {
		err = stopErr
	}
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runIngestKEV(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	kcfg := a.cfg.KEVClientConfig(a.logger.Named("kev"))
	if kevURL != "" {
		kcfg.URL = kevURL
	}
	catalog, err := kev.NewClient(kcfg).Fetch(ctx)
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := datalake.New(st, &datalake.Config{Logger: a.logger.Named("ingest"), Metrics: a.metrics}).SyncKEV(ctx, catalog)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runIndex(cmd *cobra.Command, rebuild bool) error {
	ctx := cmd.Context()
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	backend, err := a.newBackend()
	if err != nil {
		return err
	}
	jobs, err := a.jobs(backend, st, indexName)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		run := job.Run
		if rebuild {
			run = job.Rebuild
		}
		res, err := run(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", job.Name(), err)
		}
		if err := printJSON(res); err != nil {
			return err
		}
	}
	return nil
}
