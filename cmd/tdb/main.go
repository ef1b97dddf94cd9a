package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/config"
	"github.com/tobsdb/samplestore/internal/conn"
	"github.com/tobsdb/samplestore/internal/engine"
	"github.com/tobsdb/samplestore/internal/parser"
	"github.com/tobsdb/samplestore/pkg"
)

// Flags override the TDB_ environment when given.
type Options struct {
	DataPath    string `short:"d" long:"db" description:"path to save db data"`
	InMem       bool   `short:"m" long:"mem" description:"don't persist db"`
	Port        int    `short:"p" long:"port" description:"listening port"`
	LogLevel    string `short:"l" long:"log-level" description:"none, error or debug"`
	RefreshMode string `long:"refresh-mode" description:"two_phase or single_txn"`
	ExportDSN   string `long:"export-dsn" description:"mysql dsn receiving every refreshed sample set"`

	Schema   string `short:"s" long:"schema" description:"schema file whose tables are created on startup"`
	SchemaDB string `long:"schema-db" default:"main" description:"database the startup schema is created in"`
	Check    bool   `long:"check" description:"only check the schema file for errors"`
}

func checkSchema(schema_path string) error {
	schema_data, err := os.ReadFile(schema_path)
	if err != nil {
		return err
	}
	tables, err := parser.ParseSchema(string(schema_data))
	if err != nil {
		return fmt.Errorf("Invalid schema; %w", err)
	}
	for _, table := range tables {
		fmt.Printf("  %s: %d columns\n", table.Name, len(table.Fields))
	}
	fmt.Println("Schema checks successful: Schema is valid")
	return nil
}

func (o Options) apply(cfg *config.Config) {
	if o.DataPath != "" {
		cfg.DataPath = o.DataPath
	}
	if o.InMem {
		cfg.InMem = true
	}
	if o.Port != 0 {
		cfg.Port = o.Port
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.RefreshMode != "" {
		cfg.RefreshMode = o.RefreshMode
	}
	if o.ExportDSN != "" {
		cfg.ExportDSN = o.ExportDSN
	}
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Check {
		if opts.Schema == "" {
			fmt.Println("--check needs a --schema file")
			os.Exit(1)
		}
		if err := checkSchema(opts.Schema); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		pkg.FatalLog(err)
	}
	opts.apply(cfg)
	if cfg.DataPath == "" && !cfg.InMem {
		cwd, _ := os.Getwd()
		cfg.DataPath = cwd + "/db"
	}
	cfg.ApplyLogging()

	e, err := engine.Open(cfg)
	if err != nil {
		pkg.FatalLog(err)
	}
	defer e.Close()

	if opts.Schema != "" {
		schema_data, err := os.ReadFile(opts.Schema)
		if err != nil {
			pkg.FatalLog(err)
		}
		if _, err := e.CreateUserTables(string(schema_data), opts.SchemaDB); err != nil {
			if !errors.Is(err, catalog.ErrTableExists) {
				pkg.FatalLog(err)
			}
			pkg.InfoLog("using saved tables of", opts.SchemaDB)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := conn.Listen(ctx, e, cfg.Port); err != nil {
		pkg.ErrorLog(err)
		os.Exit(1)
	}
}
