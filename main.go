package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/export"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/flow"
	"github.com/metrico/tierflow/handler"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/repository"
	"github.com/metrico/tierflow/router"
	"github.com/metrico/tierflow/service/db"
	"github.com/metrico/tierflow/store"
	"github.com/metrico/tierflow/utils"
)

// initFlags initializes the command line flags
func initFlags() *model.CommandLineFlags {
	appFlags := &model.CommandLineFlags{Cuts: model.LevelCuts{}}
	appFlags.Config = flag.String("config", "", "Service configuration file (yaml, json or toml)")
	appFlags.Op = flag.String("op", "serve", "Operation: files, datastreams, resolve, entries, load, scan or serve")
	appFlags.Query = flag.String("query", "", "File selection, e.g. \"type == 'phy' and run == 'r001'\". Default all files")
	appFlags.Datastreams = flag.String("datastreams", "", "Restrict tables, word=id1,id2 (e.g. ch=1,2 or system=geds)")
	appFlags.TCM = flag.String("tcm", "", "TCM level joining parent and child levels. Default none")
	appFlags.TCMTable = flag.String("tcm-table", "", "TCM table id when a file holds several")
	appFlags.Columns = flag.String("columns", "", "Comma separated output columns")
	flag.Var(appFlags.Cuts, "cut", "Cut on a level, level=expression. Repeatable")
	appFlags.Orientation = flag.String("orientation", flow.OrientationHit, "Load orientation: hit or evt")
	appFlags.AggFunc = flag.String("agg", "", "Event aggregation: "+strings.Join(flow.AggFuncs, ", "))
	appFlags.Format = flag.String("format", "", "Output format: structured-table or flat-frame")
	appFlags.Out = flag.String("out", "", "Persist results to this file (directory, or object prefix with s3)")
	appFlags.Export = flag.String("export", "", "Write loaded rows to stdout as line protocol with this measurement")
	flag.Parse()
	return appFlags
}

func main() {
	appFlags := initFlags()
	conf, err := config.ReadConfiguration(*appFlags.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(os.Stderr, conf.Log.Level, conf.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	op, err := flow.BindOperation(logger, *appFlags.Op)
	if err != nil {
		logger.Error("bad operation", "error", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, op, appFlags, conf, logger); err != nil {
		logger.Error("operation failed", "op", string(op), "error", err)
		os.Exit(1)
	}
}

// openFileDB loads the persisted file index or builds it by scanning the
// data directory. A scan always rebuilds it.
func openFileDB(ctx context.Context, conf *config.Configuration, st store.Reader, rescan bool) (*filedb.FileDB, error) {
	fdbConf, err := config.LoadFileDBConfig(conf.Tierflow.FileDBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load file index configuration: %w", err)
	}
	if conf.Tierflow.DataDir != "" {
		fdbConf.DataDir = conf.Tierflow.DataDir
	}
	if conf.Tierflow.FileDBPath != "" && !rescan {
		conn, err := db.ConnectDuckDB(conf.Tierflow.FileDBPath)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		if err := repository.CreateFileDBTables(conn); err != nil {
			return nil, err
		}
		fdb, err := repository.LoadFileDB(conn, fdbConf)
		if err != nil {
			return nil, err
		}
		if len(fdb.Records) > 0 {
			return fdb, nil
		}
	}

	fdb, err := filedb.New(fdbConf)
	if err != nil {
		return nil, err
	}
	if err := fdb.ScanFiles(""); err != nil {
		return nil, err
	}
	if err := fdb.ScanTables(ctx, st, ""); err != nil {
		return nil, err
	}
	if conf.Tierflow.FileDBPath != "" {
		conn, err := db.ConnectDuckDB(conf.Tierflow.FileDBPath)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		if err := repository.CreateFileDBTables(conn); err != nil {
			return nil, err
		}
		if err := repository.SaveFileDB(conn, fdb); err != nil {
			return nil, err
		}
	}
	return fdb, nil
}

// outputWriter is where -out results go: S3 when configured, local parquet
// otherwise.
func outputWriter(conf *config.Configuration) (store.Writer, error) {
	if conf.S3.URL == "" {
		return store.NewParquetStore(""), nil
	}
	return store.NewS3Writer(store.S3Config{
		URL:    conf.S3.URL,
		Key:    conf.S3.Key,
		Secret: conf.S3.Secret,
		Bucket: conf.S3.Bucket,
		Region: conf.S3.Region,
		Path:   conf.S3.Path,
		Secure: conf.S3.Secure,
	})
}

func buildQuery(l *flow.Loader, appFlags *model.CommandLineFlags) (flow.Query, error) {
	q := l.NewQuery()
	ids, err := l.SelectFiles(*appFlags.Query)
	if err != nil {
		return q, err
	}
	q = q.WithFiles(ids...)
	if ds := *appFlags.Datastreams; ds != "" {
		word, list, ok := strings.Cut(ds, "=")
		if !ok {
			return q, fmt.Errorf("%w: datastreams %q is not word=ids", flow.ErrConfiguration, ds)
		}
		if q, err = l.Datastreams(q, model.SplitList(list), strings.TrimSpace(word)); err != nil {
			return q, err
		}
	}
	if len(appFlags.Cuts) > 0 {
		if q, err = q.WithCuts(appFlags.Cuts); err != nil {
			return q, err
		}
	}
	return q.WithOutput(*appFlags.Format, false, model.SplitList(*appFlags.Columns)), nil
}

func printJSON(v any) error {
	data, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Println(string(data))
	return err
}

func run(ctx context.Context, op flow.Operation, appFlags *model.CommandLineFlags,
	conf *config.Configuration, logger *slog.Logger) error {
	st := store.NewParquetStore("")
	fdb, err := openFileDB(ctx, conf, st, op == flow.OpScan)
	if err != nil {
		return err
	}
	if op == flow.OpScan {
		logger.Info("file index built", "files", len(fdb.Records), "saved_to", conf.Tierflow.FileDBPath)
		return nil
	}

	loaderConf, err := config.LoadLoaderConfig(conf.Tierflow.LoaderConfig)
	if err != nil {
		return fmt.Errorf("failed to load loader configuration: %w", err)
	}
	opts := []flow.Option{flow.WithWorkers(conf.Tierflow.Workers), flow.WithLogger(logger)}
	if conf.Tierflow.DataDir != "" {
		opts = append(opts, flow.WithDataDir(conf.Tierflow.DataDir))
	}
	loader, err := flow.NewLoader(loaderConf, fdb, st, opts...)
	if err != nil {
		return err
	}

	var out store.Writer
	if *appFlags.Out != "" || op == flow.OpServe {
		if out, err = outputWriter(conf); err != nil {
			return err
		}
	}
	if op == flow.OpServe {
		api := router.NewRouter(logger)
		router.InitHandlers(api, &handler.Handler{Loader: loader, Output: out})
		addr := conf.Server.Host + ":" + conf.Server.Port
		logger.Info("tierflow API running", "addr", addr)
		srv := &http.Server{Addr: addr, Handler: api}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	q, err := buildQuery(loader, appFlags)
	if err != nil {
		return err
	}
	switch op {
	case flow.OpFiles:
		return printJSON(q.Files)
	case flow.OpDatastreams:
		return printJSON(q.Tables)
	case flow.OpResolve:
		return printJSON(loader.Resolve(q.Columns, q.Files, q.MergeFiles))
	case flow.OpEntries:
		lists, err := loader.GenerateEntries(ctx, q, flow.GenerateOptions{
			TCMLevel:   *appFlags.TCM,
			TCMTable:   *appFlags.TCMTable,
			InMemory:   true,
			Output:     out,
			OutputFile: *appFlags.Out,
		})
		if err != nil {
			return err
		}
		for _, e := range lists {
			fmt.Printf("file %d: %d entries\n", e.File, e.Len())
		}
		return nil
	case flow.OpLoad:
		outs, err := loader.Load(ctx, q, nil, flow.LoadOptions{
			Orientation: *appFlags.Orientation,
			TCMLevel:    *appFlags.TCM,
			TCMTable:    *appFlags.TCMTable,
			InMemory:    true,
			Output:      out,
			OutputFile:  *appFlags.Out,
			AggFunc:     *appFlags.AggFunc,
		})
		if err != nil {
			return err
		}
		for _, o := range outs {
			if *appFlags.Export != "" {
				err = export.WriteLineProtocol(os.Stdout, *appFlags.Export, o)
			} else {
				_, err = fmt.Printf("file %d: %d rows, columns %s\n", o.File, o.Table.NumRows(),
					strings.Join(o.Table.Names(), ","))
			}
			o.Release()
			if err != nil {
				return err
			}
		}
		return nil
	}
	return loader.Reserved(op)
}
