package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/jirawatch/internal/app"
	"github.com/nhle/jirawatch/internal/credential"
	"github.com/nhle/jirawatch/internal/engine"
	"github.com/nhle/jirawatch/internal/history"
	"github.com/nhle/jirawatch/internal/jira"
	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/statefile"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "jirawatch:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the config file")
	statePath := flag.String("state", model.DefaultStatePath(), "path to the state snapshot")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	token, err := credential.GetToken()
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		// A broken keyring should not block time tracking; the user can
		// re-enter the token in settings.
		fmt.Fprintln(os.Stderr, "jirawatch: keyring unavailable:", err)
	}

	var client *jira.SyncClient
	creds := model.Credentials{
		BaseURL:  cfg.Jira.BaseURL,
		Email:    cfg.Jira.Email,
		APIToken: token,
	}
	if creds.Configured() {
		client = jira.NewSyncClient(creds)
	}

	hist, err := history.New(model.DefaultHistoryPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "jirawatch: worklog history disabled:", err)
		hist = nil
	}

	eng, err := engine.New(engine.Options{
		Config:  cfg,
		State:   statefile.New(*statePath),
		Client:  client,
		History: hist,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	root := app.New(eng, *cfg, *configPath, credential.GetToken, credential.SetToken)
	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
