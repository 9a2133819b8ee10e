package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/chmdznr/ftpsync/internal/config"
	"github.com/chmdznr/ftpsync/internal/db"
	"github.com/chmdznr/ftpsync/internal/logger"
	"github.com/chmdznr/ftpsync/internal/notify"
	"github.com/chmdznr/ftpsync/internal/remote"
	"github.com/chmdznr/ftpsync/internal/sync"
	"github.com/chmdznr/ftpsync/pkg/utils"
	"github.com/chmdznr/ftpsync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "ftpsync",
		Usage:                "Two-way synchronization between a local folder and an FTP server",
		Version:              version.String(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default: ./ftpsync.yaml if present)",
			},
			&cli.StringFlag{Name: "backend", Usage: "Remote backend: ftp or s3"},
			&cli.StringFlag{Name: "host", Usage: "Server host name"},
			&cli.IntFlag{Name: "port", Usage: "Server port"},
			&cli.BoolFlag{Name: "tls", Usage: "Use explicit TLS (FTPS) or HTTPS for s3"},
			&cli.StringFlag{Name: "user", Usage: "Login user"},
			&cli.StringFlag{Name: "password", Usage: "Login password (prompted when empty)", EnvVars: []string{"FTPSYNC_REMOTE_PASSWORD"}},
			&cli.StringFlag{Name: "root", Usage: "Remote root directory"},
			&cli.StringFlag{Name: "local", Usage: "Local root directory"},
			&cli.StringFlag{Name: "state", Usage: "Path to the state database"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "Start synchronization",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Run a single cycle and exit",
					},
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "Read single-key commands: s syncs now, q quits",
					},
				},
				Action: startSync,
			},
			{
				Name:   "probe",
				Usage:  "Log in and check the server can store files and set their times",
				Action: probeServer,
			},
			{
				Name:   "status",
				Usage:  "Show state store status",
				Action: showStatus,
			},
			{
				Name:  "reset",
				Usage: "Clear the state store and the action queue",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the reset",
					},
				},
				Action: resetState,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config file and applies the global flags that were
// set explicitly on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("backend") {
		cfg.Remote.Backend = c.String("backend")
	}
	if c.IsSet("host") {
		cfg.Remote.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Remote.Port = c.Int("port")
	}
	if c.IsSet("tls") {
		cfg.Remote.TLS = c.Bool("tls")
	}
	if c.IsSet("user") {
		cfg.Remote.User = c.String("user")
	}
	if c.IsSet("password") {
		cfg.Remote.Password = c.String("password")
	}
	if c.IsSet("root") {
		cfg.Remote.Root = c.String("root")
	}
	if c.IsSet("local") {
		cfg.Local.Root = c.String("local")
	}
	if c.IsSet("state") {
		cfg.State.Path = c.String("state")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	return cfg, nil
}

// connectConfig loads, completes and validates the settings needed to log in.
func connectConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := promptPassword(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// promptPassword asks for the FTP password on an interactive terminal.
func promptPassword(cfg *config.Config) error {
	if cfg.Remote.Backend != config.BackendFTP || cfg.Remote.Password != "" || cfg.Remote.User == "anonymous" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Printf("Password for %s@%s: ", cfg.Remote.User, cfg.Remote.Host)
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %v", err)
	}
	cfg.Remote.Password = string(pw)
	return nil
}

func startSync(c *cli.Context) error {
	cfg, err := connectConfig(c)
	if err != nil {
		return err
	}
	lg := logger.Setup(cfg.LoggerConfig())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.State.Path, logger.Component(lg, "db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer database.Close()

	bus := notify.NewBus(256)
	view := newProgressView(os.Stdout)

	client, err := remote.Connect(ctx, cfg, logger.Component(lg, "transport"), bus)
	if err != nil {
		view.drain(bus)
		return err
	}

	syncer, err := sync.NewSyncer(database, client, sync.SyncerConfig{
		LocalRoot:       cfg.Local.Root,
		RemoteRoot:      cfg.Remote.Root,
		Tolerance:       cfg.Sync.Tolerance,
		DefaultInterval: cfg.Sync.DefaultInterval,
		BusyInterval:    cfg.Sync.BusyInterval,
		IdleInterval:    cfg.Sync.IdleInterval,
	}, bus, lg)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to create syncer: %v", err)
	}
	defer syncer.Close()

	if c.Bool("once") {
		return syncOnce(ctx, syncer, bus, view)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return syncer.Run(gctx)
	})
	g.Go(func() error {
		view.run(gctx, bus)
		return nil
	})
	if c.Bool("interactive") {
		g.Go(func() error {
			return listenKeys(gctx, syncer, cancel)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to sync files: %v", err)
	}
	view.finish()
	fmt.Println("Sync stopped")
	return nil
}

// syncOnce bootstraps and runs cycles until the queued work is done.
func syncOnce(ctx context.Context, syncer *sync.Syncer, bus *notify.Bus, view *progressView) error {
	if _, err := syncer.Bootstrap(ctx); err != nil {
		return err
	}
	vctx, vcancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		view.run(vctx, bus)
		close(done)
	}()
	defer func() {
		vcancel()
		<-done
		view.finish()
	}()

	var total sync.CycleStats
	for i := 0; ; i++ {
		stats, err := syncer.SyncNow(ctx)
		if err != nil {
			return fmt.Errorf("failed to sync files: %v", err)
		}
		total.Uploaded += stats.Uploaded
		total.Downloaded += stats.Downloaded
		total.Deleted += stats.Deleted
		total.Failed += stats.Failed
		total.Bytes += stats.Bytes
		// Failed transfers are queued again by every cycle, so stop once a
		// cycle after the first one moves nothing.
		if stats.Queued == 0 || (i > 0 && stats.Uploaded+stats.Downloaded+stats.Deleted == 0) {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	fmt.Printf("\nSync Summary:\n")
	fmt.Printf("- Uploaded:    %d\n", total.Uploaded)
	fmt.Printf("- Downloaded:  %d\n", total.Downloaded)
	fmt.Printf("- Deleted:     %d\n", total.Deleted)
	fmt.Printf("- Failed:      %d\n", total.Failed)
	fmt.Printf("- Transferred: %s\n", utils.FormatSize(total.Bytes))
	return nil
}

func probeServer(c *cli.Context) error {
	cfg, err := connectConfig(c)
	if err != nil {
		return err
	}
	lg := logger.Setup(cfg.LoggerConfig())

	client, err := remote.Connect(c.Context, cfg, logger.Component(lg, "transport"), nil)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Server %s (%s) passed the self-test\n", cfg.Remote.Addr(), cfg.Remote.Backend)
	return nil
}

// showStatus shows the state store status
//
// It prints how many files are tracked, how many exist on both sides and
// how many actions are waiting in the queue.
func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.State.Path, logger.Nop())
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer database.Close()

	stats, err := database.GetStats()
	if err != nil {
		return fmt.Errorf("failed to get stats: %v", err)
	}

	fmt.Printf("State: %s\n", cfg.State.Path)
	fmt.Printf("Local Root: %s\n", cfg.Local.Root)
	fmt.Printf("Remote: %s%s\n", cfg.Remote.Addr(), cfg.Remote.Root)
	fmt.Printf("Tracked Files: %d\n", stats.TotalFiles)
	fmt.Printf("In Sync: %d\n", stats.SyncedFiles)
	fmt.Printf("Local Only: %d\n", stats.LocalOnlyFiles)
	fmt.Printf("Remote Only: %d\n", stats.RemoteOnlyFiles)
	fmt.Printf("Pending Actions: %d (upload %d, download %d, delete %d)\n",
		stats.PendingActions(), stats.PendingUploads, stats.PendingDownloads, stats.PendingDeletes)

	if stats.TotalFiles > 0 {
		progress := float64(stats.SyncedFiles) / float64(stats.TotalFiles) * 100
		fmt.Printf("Progress: %.2f%%\n", progress)
	}
	return nil
}

func resetState(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("reset discards all sync state, pass --yes to confirm")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.State.Path, logger.Nop())
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.Reset(); err != nil {
		return fmt.Errorf("failed to reset state: %v", err)
	}
	fmt.Printf("State store '%s' cleared\n", cfg.State.Path)
	return nil
}
