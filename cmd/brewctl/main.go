// brewctl is the operator CLI: schema migration, fixtures, command enqueue and device
// secret rotation against the configured database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"brewlink/config"
	"brewlink/internal/commands"
	"brewlink/internal/db"
	"brewlink/internal/devauth"
	"brewlink/internal/fixtures"
	"brewlink/internal/logs"
	"brewlink/internal/repo"

	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

const usage = `usage: brewctl [--config FILE] <command> [flags]

commands:
  migrate                                   create or update the schema
  seed --file FILE                          apply a fixtures file
  enqueue --device KEY --command NAME [--payload JSON]
  secret issue|promote|retire --device KEY  rotate a device secret
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "brewctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := pflag.NewFlagSet("brewctl", pflag.ContinueOnError)
	configPath := global.StringP("config", "c", "", "path to config file")
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logs.Init(logs.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File})
	if cfg.Database.Driver == "" {
		return errors.New("database.driver is not set; brewctl needs a database")
	}
	gdb, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch rest[0] {
	case "migrate":
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		logs.Logger.Info("schema up to date")
		return nil
	case "seed":
		return seed(ctx, gdb, rest[1:])
	case "enqueue":
		return enqueue(ctx, gdb, cfg, rest[1:])
	case "secret":
		return secret(ctx, gdb, rest[1:])
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func seed(ctx context.Context, gdb *gorm.DB, args []string) error {
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	file := fs.StringP("file", "f", "", "fixtures yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("seed: --file is required")
	}
	set, err := fixtures.Load(*file)
	if err != nil {
		return err
	}
	if err := repo.Seed(ctx, gdb, set); err != nil {
		return err
	}
	logs.Logger.Infof("seeded %d machines, %d devices, %d recipe items",
		len(set.Machines), len(set.Devices), len(set.Recipes))
	return nil
}

func enqueue(ctx context.Context, gdb *gorm.DB, cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("enqueue", pflag.ContinueOnError)
	device := fs.String("device", "", "device key")
	name := fs.String("command", "", "command name")
	payload := fs.String("payload", "", "JSON payload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *device == "" || *name == "" {
		return errors.New("enqueue: --device and --command are required")
	}

	rec, ok, err := repo.NewDeviceStore(gdb).LookupDevice(ctx, *device)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("enqueue: %w: %s", devauth.ErrDeviceNotFound, *device)
	}

	q := commands.NewQueue(repo.NewCommandStore(gdb), cfg.Commands.ClaimAttempts, cfg.Commands.AckStatuses)
	cmd, err := q.Enqueue(ctx, rec.ID, *name, json.RawMessage(*payload))
	if err != nil {
		return err
	}
	fmt.Println(cmd.UUID)
	return nil
}

func secret(ctx context.Context, gdb *gorm.DB, args []string) error {
	if len(args) == 0 {
		return errors.New("secret: issue, promote or retire")
	}
	fs := pflag.NewFlagSet("secret", pflag.ContinueOnError)
	device := fs.String("device", "", "device key")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *device == "" {
		return errors.New("secret: --device is required")
	}
	store := repo.NewDeviceStore(gdb)

	switch args[0] {
	case "issue":
		next, err := devauth.IssueNext(ctx, store, *device)
		if err != nil {
			return err
		}
		// секрет печатается один раз, его надо прошить в устройство
		fmt.Println(next)
	case "promote":
		if err := devauth.Promote(ctx, store, *device); err != nil {
			return err
		}
		logs.Logger.Infof("%s: next secret promoted, previous secret still accepted until retire", *device)
	case "retire":
		if err := devauth.Retire(ctx, store, *device); err != nil {
			return err
		}
		logs.Logger.Infof("%s: only the current secret is accepted now", *device)
	default:
		return fmt.Errorf("secret: unknown action %q", args[0])
	}
	return nil
}
