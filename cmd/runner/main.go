package main

import (
	"context"
	"encoding/json"
	"flag"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/outreach/internal/app"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "outreach-runner",
	})
	logger.SetDefaultLogger(appLogger)

	var opts options
	flag.StringVar(&opts.stage, "stage", "", "Stage to run: email_finding, inserts, drafts or sending")
	flag.StringVar(&opts.userID, "user", "", "Acting user id")
	flag.StringVar(&opts.campaignID, "campaign", "", "Campaign id")
	flag.StringVar(&opts.templateID, "template", "", "Template id (drafts only)")
	flag.BoolVar(&opts.reset, "reset", false, "Reset the campaign's run to IDLE")
	flag.BoolVar(&opts.status, "status", false, "Print the campaign's run status")
	flag.BoolVar(&opts.history, "history", false, "Print every recorded run of the campaign")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Walk the contacts without calling integrations or recording runs")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := opts.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, stopping after the current batch...")
		cancel()
	}()

	a, err := app.Build(ctx, cfg, app.Options{DryRun: opts.dryRun})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent:  "runner",
		logger.FieldUserID:     opts.userID,
		logger.FieldCampaignID: opts.campaignID,
	})

	var out interface{}
	switch {
	case opts.history:
		out, err = a.Runs.ListRuns(ctx, opts.campaignID)
	case opts.status:
		out, err = a.Orchestrator.GetStatus(ctx, opts.campaignID)
	case opts.reset:
		out, err = a.Orchestrator.Reset(ctx, opts.userID, opts.campaignID)
	default:
		out, err = a.Orchestrator.StartStage(ctx, domain.Stage(opts.stage), opts.userID, opts.campaignID,
			domain.StageParams{TemplateID: opts.templateID})
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Runner command failed")
		a.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

type options struct {
	stage      string
	userID     string
	campaignID string
	templateID string
	reset      bool
	status     bool
	history    bool
	dryRun     bool
}

// validate rejects flag combinations before any connection is opened.
// A dry run keeps runs in a process-local ledger, so nothing it records
// can be read back by -status or -history.
func (o options) validate() error {
	if o.campaignID == "" {
		return errors.New("-campaign is required")
	}
	commands := 0
	for _, set := range []bool{o.reset, o.status, o.history} {
		if set {
			commands++
		}
	}
	if commands > 1 {
		return errors.New("-reset, -status and -history are mutually exclusive")
	}
	if o.dryRun && (o.status || o.history) {
		return errors.New("-dry-run records nothing to read; drop it for -status or -history")
	}
	if commands == 0 && o.stage == "" {
		return errors.New("-stage is required")
	}
	return nil
}
