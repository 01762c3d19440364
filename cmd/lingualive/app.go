package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/bootstrap"
	"lingualive/internal/clipboard"
	"lingualive/internal/config"
	"lingualive/internal/domain"
	"lingualive/internal/httpapi"
	"lingualive/internal/observability/logging"
)

const shutdownTimeout = 10 * time.Second

// App is the daemon root: it owns the service graph and the control server.
type App struct {
	cfg      config.Config
	services bootstrap.Services
	hub      *httpapi.Hub
	server   *http.Server
	log      zerolog.Logger
}

func NewApp(cfg config.Config) (*App, error) {
	hub := httpapi.NewHub()
	services, err := bootstrap.Build(cfg, hub, clipboard.NewSystem())
	if err != nil {
		return nil, err
	}
	hub.SetLevelSource(services.Controller.Levels)

	return &App{
		cfg:      cfg,
		services: services,
		hub:      hub,
		server: &http.Server{
			Handler:           httpapi.NewRouter(services.Controller, hub, nil, httpapi.WithLanguageService(services.Translator)),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logging.WithComponent("app"),
	}, nil
}

// Run serves the control API on the configured address until ctx ends.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Service.HTTPAddr)
	if err != nil {
		return err
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	info := a.runtimeInfo()
	a.log.Info().
		Str("addr", ln.Addr().String()).
		Str("sttProvider", info["provider"]).
		Str("sourceLanguage", info["sourceLanguage"]).
		Str("targetLanguage", info["targetLanguage"]).
		Str("audioInput", info["audioInput"]).
		Msg("lingualive started")
	a.hub.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		a.release()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.services.Controller.Status().Active {
		if _, err := a.services.Controller.Stop(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop recording on shutdown")
			a.services.Controller.ForceReset()
		}
	}
	a.hub.Close()
	err := a.server.Shutdown(shutdownCtx)
	a.release()
	return err
}

func (a *App) release() {
	if err := a.services.Close(); err != nil {
		a.log.Debug().Err(err).Msg("service cleanup failed")
	}
}

// runtimeInfo returns non-sensitive config for startup logs.
func (a *App) runtimeInfo() map[string]string {
	provider := ""
	if a.cfg.Recognition.Provider != nil {
		provider = a.cfg.Recognition.Provider.String()
	}
	return map[string]string{
		"provider":         provider,
		"sourceLanguage":   a.cfg.Translation.SourceLanguage,
		"targetLanguage":   a.cfg.Translation.TargetLanguage,
		"rulesFile":        a.cfg.Rules.Path,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}
