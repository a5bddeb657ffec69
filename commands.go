package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asaidimu/go-tabula/config"
	"github.com/asaidimu/go-tabula/export"
	"github.com/asaidimu/go-tabula/ledger"
	"github.com/asaidimu/go-tabula/server"
	"github.com/asaidimu/go-tabula/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	setValues  []string
	sortRule   string
	sortDir    string
	formatName string
	outPath    string
	fromPath   string

	rootCmd = &cobra.Command{
		Use:          "tabula",
		Short:        "Serve and export back-office ledgers",
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve every configured ledger over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	ledgersCmd = &cobra.Command{
		Use:   "ledgers",
		Short: "List the configured ledgers",
		Args:  cobra.NoArgs,
		RunE:  runLedgers,
	}

	renderCmd = &cobra.Command{
		Use:   "render [ledger]",
		Short: "Compute a ledger view and print it as JSON",
		Long: `Compute a ledger view and print it as JSON.

Filters are bound with --set rule=value. Range rules take rule_min and
rule_max, e.g. --set salary_min=250000 --set hired_max=2024-03-31.`,
		Args: cobra.ExactArgs(1),
		RunE: runRender,
	}

	recordCmd = &cobra.Command{
		Use:   "record [ledger] [key]",
		Short: "Print the record whose key field equals key",
		Args:  cobra.ExactArgs(2),
		RunE:  runRecord,
	}

	exportCmd = &cobra.Command{
		Use:   "export [ledger]",
		Short: "Export a ledger view as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	seedCmd = &cobra.Command{
		Use:   "seed [ledger]",
		Short: "Create a sqlite ledger's table and load records from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tabula.yaml", "path to the config file")

	for _, cmd := range []*cobra.Command{renderCmd, exportCmd} {
		cmd.Flags().StringArrayVar(&setValues, "set", nil, "bind a filter value, rule=value (repeatable)")
		cmd.Flags().StringVar(&sortRule, "sort", "", "sort rule to apply")
		cmd.Flags().StringVar(&sortDir, "dir", "", "sort direction, asc or desc")
	}
	exportCmd.Flags().StringVarP(&formatName, "format", "f", "csv", "export format, csv or xlsx")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default <ledger>_<date>.<format>)")
	seedCmd.Flags().StringVar(&fromPath, "from", "", "JSON file holding the records")
	_ = seedCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(serveCmd, ledgersCmd, renderCmd, recordCmd, exportCmd, seedCmd)
}

// loadDeployment reads the config and wires its ledgers.
func loadDeployment() (*config.Config, *config.Deployment, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	d, err := config.Build(cfg, logger, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, d, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, d, logger, err := loadDeployment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(d.Registry, logger, server.Options{
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	defer srv.Close()
	return srv.Run(ctx, cfg.Server.Addr)
}

func runLedgers(cmd *cobra.Command, _ []string) error {
	_, d, logger, err := loadDeployment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer d.Close()

	out := cmd.OutOrStdout()
	for _, l := range d.Registry.Ledgers() {
		rules := l.View.Rules()
		names := make([]string, 0, len(rules.Filters))
		for _, f := range rules.Filters {
			names = append(names, f.Name)
		}
		fmt.Fprintf(out, "%s\t%s\tfilters: %s\n", l.Name, l.Title, strings.Join(names, ", "))
	}
	return nil
}

// stateArgs turns --set, --sort and --dir into the query form the HTTP API
// accepts, so both bind rules the same way.
func stateArgs() (url.Values, error) {
	q := url.Values{}
	for _, kv := range setValues {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set '%s', expected rule=value", kv)
		}
		q.Add(key, value)
	}
	if sortRule != "" {
		q.Set("sort", sortRule)
	}
	if sortDir != "" {
		q.Set("dir", sortDir)
	}
	return q, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	_, d, logger, err := loadDeployment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer d.Close()

	l, err := d.Registry.Get(args[0])
	if err != nil {
		return err
	}
	q, err := stateArgs()
	if err != nil {
		return err
	}
	result, err := d.Registry.Render(cmd.Context(), l.Name, server.StateFromQuery(l.View.Rules(), q))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runRecord(cmd *cobra.Command, args []string) error {
	_, d, logger, err := loadDeployment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer d.Close()

	record, err := d.Registry.Record(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

func runExport(cmd *cobra.Command, args []string) error {
	_, d, logger, err := loadDeployment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer d.Close()

	format, err := ledger.ParseFormat(formatName)
	if err != nil {
		return err
	}
	l, err := d.Registry.Get(args[0])
	if err != nil {
		return err
	}
	q, err := stateArgs()
	if err != nil {
		return err
	}

	path := outPath
	if path == "" {
		path = export.Filename(l.Name, string(format), time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := d.Registry.Export(cmd.Context(), l.Name, server.StateFromQuery(l.View.Rules(), q), format, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("Exported ledger", zap.String("ledger", l.Name), zap.String("path", path))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, d, logger, err := loadDeployment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer d.Close()

	lc, ok := cfg.Ledger(args[0])
	if !ok {
		return fmt.Errorf("%w: '%s'", ledger.ErrUnknownLedger, args[0])
	}
	if lc.Source.Type != config.SourceSQLite {
		return fmt.Errorf("ledger '%s' reads from %s, not sqlite", lc.Name, lc.Source.Type)
	}

	records, err := source.NewJSONFile(fromPath, logger).Fetch(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := d.Store.CreateTable(ctx, &lc.Schema, lc.Source.Table); err != nil {
		return err
	}
	n, err := d.Store.Insert(ctx, &lc.Schema, lc.Source.Table, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d records into %s\n", n, lc.Name)
	return nil
}
