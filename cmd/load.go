package cmd

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmrel-go/internal/logger"
	"github.com/wegman-software/osmrel-go/internal/output"
	"github.com/wegman-software/osmrel-go/internal/pipeline"
	"github.com/wegman-software/osmrel-go/internal/proj"
)

var loadProjection string

var loadCmd = &cobra.Command{
	Use:   "load [relations.parquet]",
	Short: "Load assembled relations into PostgreSQL",
	Long: `Bulk load a relations Parquet file written by assemble into PostGIS.

This stage:
  1. Creates the target table (--db-table) if needed
  2. Uses COPY in batches of --batch-size rows
  3. Creates a spatial index on the geometry column

The file defaults to <output-dir>/relations.parquet.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVarP(&loadProjection, "projection", "E", "4326", "Projection the file was assembled in")
	loadCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per COPY batch")
}

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.For("load")

	path := filepath.Join(cfg.OutputDir, pipeline.RelationsFile)
	if len(args) == 1 {
		path = args[0]
	}
	crs, err := proj.ParseCRS(loadProjection)
	if err != nil {
		exitWithError("invalid projection", err)
	}

	log.Info("Starting PostgreSQL load",
		zap.String("input", path),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("schema", cfg.DBSchema),
		zap.String("table", cfg.DBTable),
	)

	start := time.Now()
	ctx := context.Background()

	w, err := output.NewPostgresWriter(ctx, cfg, int(crs), log)
	if err != nil {
		exitWithError("failed to connect", err)
	}

	rows, err := output.LoadParquet(ctx, path, w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		exitWithError("load failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Load complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", rows),
		zap.Float64("throughput_rows_s", float64(rows)/elapsed.Seconds()),
	)
}
