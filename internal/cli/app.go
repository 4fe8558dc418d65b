package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"despesas/internal/apiclient"
	"despesas/internal/catalog"
	"despesas/internal/config"
	"despesas/internal/core"
	"despesas/internal/feed"
	"despesas/internal/feed/remote"
	"despesas/internal/gateway"
	"despesas/internal/log"
	"despesas/internal/session"
)

// Store is the remote collection as the client sees it.
type Store interface {
	gateway.Store
	List(ctx context.Context) ([]core.Expense, error)
}

// App holds everything the commands need. Fields are set by NewApp and
// may be replaced in tests.
type App struct {
	Catalog  *catalog.Catalog
	Gate     *session.Gate
	Store    Store
	Feed     feed.Feed
	Prompt   Prompter
	Logger   *log.Logger
	Location *time.Location
	Now      func() time.Time
	Timeout  time.Duration
	Out      io.Writer
}

// NewApp wires the client from its configuration.
func NewApp(cfg *config.ClientConfig, logger *log.Logger) (*App, error) {
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := session.Open(cfg.SessionFile())
	if err != nil {
		return nil, err
	}

	hash := []byte(cfg.PINHash)
	if cfg.PINHash == "" {
		if hash, err = session.HashPIN(cfg.PIN); err != nil {
			return nil, err
		}
	}

	api, err := apiclient.New(cfg.ServerURL,
		apiclient.WithToken(cfg.APIToken),
		apiclient.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	live, err := remote.New(cfg.ServerURL,
		remote.WithToken(cfg.APIToken),
		remote.WithCache(remote.NewFileCache(cfg.SnapshotFile())),
		remote.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &App{
		Catalog:  cat,
		Gate:     session.NewGate(store, cat, hash, logger),
		Store:    api,
		Feed:     live,
		Prompt:   HuhPrompter{Accessible: os.Getenv("ACCESSIBLE") != ""},
		Logger:   logger.WithComponent(log.ComponentCLI),
		Location: loc,
		Now:      time.Now,
		Timeout:  cfg.RequestTimeout,
		Out:      os.Stdout,
	}, nil
}

func (a *App) today() core.Date {
	return core.DateOf(a.Now().In(a.Location))
}

func (a *App) gateway(confirm gateway.Confirmer) *gateway.Gateway {
	opts := []gateway.Option{
		gateway.WithTimeout(a.Timeout),
		gateway.WithClock(a.Now),
		gateway.WithLocation(a.Location),
		gateway.WithLogger(a.Logger),
	}
	if confirm != nil {
		opts = append(opts, gateway.WithConfirmer(confirm))
	}
	return gateway.New(a.Store, a.Catalog, opts...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
