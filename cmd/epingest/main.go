package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	_ "epingest/internal/infrastructure/database/gormdb/mysql"
	_ "epingest/internal/infrastructure/database/gormdb/postgres"
	_ "epingest/internal/infrastructure/database/gormdb/sqlite"

	"epingest/internal/app"
	"epingest/internal/config"
	"epingest/internal/support/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <migrate|ingest|export>\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	buildingID := flag.Int("building", 0, "building ID for ingest and export commands")
	variableName := flag.String("variable", "", "export only this variable (e.g. \"Zone Air Temperature\")")
	subvarType := flag.String("subvar-type", "", "subdivision column for -variable (schedulename, zonename, surfacename, systemnodename)")
	subvarName := flag.String("subvar-name", "", "subdivision entity for -variable (e.g. \"ZONE A\")")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	if (command == "ingest" || command == "export") && *buildingID <= 0 {
		fmt.Fprintln(os.Stderr, "a positive -building ID is required for ingest and export")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal %v. Stopping the run; the ledger keeps resume points.", sig)
		cancel()
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	app.RunApplication(ctx, cfg, app.Command{
		Name:            command,
		BuildingID:      *buildingID,
		VariableName:    *variableName,
		SubvariableType: *subvarType,
		SubvariableName: *subvarName,
	})
}
