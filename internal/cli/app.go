package cli

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nimbl/backend/internal/config"
	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/responses"
	"github.com/nimbl/backend/internal/service"
	"github.com/nimbl/backend/internal/storage"
	"github.com/nimbl/backend/internal/templates"
)

// app is the wired storage and service layer shared by the commands.
type app struct {
	cfg       *config.AppConfig
	model     *form.Model
	responses *responses.DuckStore
	templates *templates.Registry
	forms     *service.FormService
	answers   *service.ResponseService
}

func openApp(cfg *config.AppConfig, logger *log.Logger) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	formStore, err := storage.NewLocalStore(cfg.Storage.FormsDirectory, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize form storage: %w", err)
	}

	tpl, err := templates.Load(cfg.Storage.TemplatesDirectory)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	respStore, err := responses.Open(cfg.Storage.ResponsesDatabase, responses.Options{
		Threads:     cfg.Advanced.DuckDBThreads,
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open response database: %w", err)
	}

	model := form.New(cfg.FormSettings())
	return &app{
		cfg:       cfg,
		model:     model,
		responses: respStore,
		templates: tpl,
		forms:     service.NewFormService(formStore, respStore, model, tpl, logger),
		answers:   service.NewResponseService(formStore, respStore, logger),
	}, nil
}

func (a *app) Close() error {
	if a.responses == nil {
		return nil
	}
	return a.responses.Close()
}
