package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmrel-go/internal/config"
	"github.com/wegman-software/osmrel-go/internal/logger"
	"github.com/wegman-software/osmrel-go/internal/pipeline"
	"github.com/wegman-software/osmrel-go/internal/proj"
)

var (
	bboxStr       string
	projectionStr string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <input>",
	Short: "Assemble relations with their members",
	Long: `Assemble relations in two passes over the input:

  1. Pass 1: Read relations, keep those of interest and index their members
  2. Pass 2: Read nodes, ways and relations; every member seen is stored and
     a relation is written as soon as its last member arrives

Completed relations go to <output-dir>/relations.parquet (and PostgreSQL
with --db). Relations still missing members are listed in
<output-dir>/incomplete.yaml.`,
	Args: cobra.ExactArgs(1),
	Run:  runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)

	f := assembleCmd.Flags()
	f.StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	f.StringVarP(&projectionStr, "projection", "E", "4326", "Target projection (4326 or 3857, EPSG: prefix allowed)")
	f.StringVar(&cfg.FilterFile, "filter", "", "YAML rules selecting relations and members")
	f.StringVar(&cfg.LuaFile, "lua", "", "Lua script defining relation_of_interest and member_relevant")
	f.StringVar(&cfg.Store, "store", cfg.Store, "Record store: memory or mmap")
	f.StringVar(&cfg.Locations, "locations", cfg.Locations, "Node location index: memory, mmap or none")
	f.Int64Var(&cfg.MaxNodeID, "max-node-id", cfg.MaxNodeID, "Largest node id the mmap location index can hold")
	f.StringVar(&cfg.Incomplete, "incomplete", cfg.Incomplete, "Relations missing members at the end: drop, emit or fail")
	f.BoolVar(&cfg.SkipDuplicates, "skip-duplicates", false, "Ignore repeated relation ids instead of failing")
	f.BoolVar(&cfg.KeepTemp, "keep-temp", false, "Keep memory-mapped store files after the run")
	f.BoolVar(&cfg.UseDB, "db", false, "Also load assembled relations into PostgreSQL")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group and COPY batch")
	f.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "Interval for progress logging (0 disables)")
}

func runAssemble(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.For("assemble")

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}

	crs, err := proj.ParseCRS(projectionStr)
	if err != nil {
		exitWithError("invalid projection", err)
	}
	cfg.Projection = int(crs)

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("workers", cfg.Workers),
		zap.String("projection", crs.String()),
		zap.String("store", cfg.Store),
		zap.String("locations", cfg.Locations),
		zap.String("incomplete", cfg.Incomplete),
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox",
			fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", cfg.BBox.MinLon, cfg.BBox.MinLat, cfg.BBox.MaxLon, cfg.BBox.MaxLat)))
	}
	if cfg.FilterFile != "" {
		logFields = append(logFields, zap.String("filter", cfg.FilterFile))
	}
	if cfg.LuaFile != "" {
		logFields = append(logFields, zap.String("lua", cfg.LuaFile))
	}
	if cfg.UseDB {
		logFields = append(logFields, zap.String("database", fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)))
	}
	log.Info("Starting relation assembly", logFields...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := pipeline.Run(ctx, cfg, log)
	if err != nil {
		exitWithError("assembly failed", err)
	}

	log.Info("Assembly finished",
		zap.Duration("total_time", stats.Duration.Round(time.Second)),
		zap.Int64("relations", stats.Relations.Counts.Relations),
		zap.Int64("tracked", stats.Assembly.Tracked),
		zap.Int64("emitted", stats.Assembly.Emitted),
		zap.Int64("partial", stats.Assembly.Partial),
		zap.Int("incomplete", stats.Incomplete),
		zap.Int64("written", stats.Output.Written),
		zap.Int64("outside_bbox", stats.Output.Outside),
		zap.Int64("node_locations", stats.Locations),
		zap.Float64("throughput_mb_s", float64(stats.Relations.BytesRead+stats.Members.BytesRead)/(1024*1024)/stats.Duration.Seconds()),
	)
}
