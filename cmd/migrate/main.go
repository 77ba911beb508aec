package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command>

commands:
  up              apply all pending migrations
  down            roll back the latest migration
  status          list migrations and their state
  to <version>    migrate up or down to YYYYMMDDHHMMSS
  create <name>   write a new empty migration into -dir
  validate        check file names and goose markers
`

func main() {
	dir := flag.String("dir", "", "migrations directory (default: migrations embedded in the binary)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.Create(target, argOrExit(args, "name"), time.Now())
		exitOn(err)
		fmt.Println("created", path)
		return
	case "validate":
		fsys, err := migrate.Source(*dir)
		exitOn(err)
		exitOn(migrate.Validate(fsys))
		fmt.Println("migrations ok")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(err)
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	runner, closeDB, err := openRunner(ctx, cfg, logg, *dir)
	if err != nil {
		logg.Error(ctx, "migrate bootstrap failed", err)
		os.Exit(1)
	}
	defer closeDB()

	switch cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "to":
		err = runner.To(ctx, argOrExit(args, "version"))
	case "status":
		err = printStatus(ctx, runner)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logg.Error(ctx, "migrate command failed", err)
		os.Exit(1)
	}
}

func openRunner(ctx context.Context, cfg *config.Config, logg *logger.Logger, dir string) (*migrate.Runner, func(), error) {
	fsys, err := migrate.Source(dir)
	if err != nil {
		return nil, nil, err
	}
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = client.Close() }
	sqlDB, err := client.DB().DB()
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	runner, err := migrate.NewRunner(sqlDB, fsys, logg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return runner, closeDB, nil
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	statuses, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
	}
	return w.Flush()
}

func argOrExit(args []string, name string) string {
	if len(args) == 0 || args[0] == "" {
		fmt.Fprintf(os.Stderr, "missing <%s>\n\n", name)
		flag.Usage()
		os.Exit(2)
	}
	return args[0]
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
