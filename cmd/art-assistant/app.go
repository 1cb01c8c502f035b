package main

import (
	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/activity"
	"github.com/fgeck/art-assistant/internal/services/dispatcher"
	"github.com/fgeck/art-assistant/internal/services/grok"
	"github.com/fgeck/art-assistant/internal/services/nanogpt"
	"github.com/fgeck/art-assistant/internal/services/offline"
	"github.com/fgeck/art-assistant/internal/services/router"
	"github.com/fgeck/art-assistant/internal/services/watchdog"
	"github.com/rs/zerolog"
)

// app bundles the services a command needs.
type app struct {
	cfg        *models.AppConfig
	activity   *activity.Impl
	watchdog   *watchdog.Impl
	dispatcher *dispatcher.Impl
	nanogpt    *nanogpt.Impl // nil when NanoGPT has no credential
}

func newApp(logger zerolog.Logger, cfg *models.AppConfig) (*app, error) {
	act := activity.New(logger, cfg.Activity.LogPath)

	wd, err := watchdog.New(logger, *cfg, act)
	if err != nil {
		return nil, err
	}

	corpus, err := offline.New(logger, cfg.Offline.CorpusPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, activity: act, watchdog: wd}

	backends := make(map[models.Mode]dispatcher.Backend)
	if cfg.NanoGPT.Configured() {
		a.nanogpt = nanogpt.New(logger, cfg.NanoGPT)
		backends[models.ModeNanoGPT] = a.nanogpt
	}
	if cfg.Grok.Configured() {
		backends[models.ModeGrok] = grok.New(logger, cfg.Grok)
	}

	r := router.New(logger, cfg.NanoGPT.Configured(), cfg.Grok.Configured(), cfg.DefaultMode)
	a.dispatcher = dispatcher.New(logger, r, backends, corpus, act, cfg.Dispatch)

	logger.Debug().
		Str("mode", string(r.Mode())).
		Int("corpus", corpus.Len()).
		Msg("assistant ready")

	return a, nil
}
