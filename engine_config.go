package b4ae

import (
	"github.com/b4ae-project/b4ae/config"
	"github.com/b4ae-project/b4ae/cookie"
	"github.com/b4ae-project/b4ae/handshake"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/scheduler"
	"github.com/b4ae-project/b4ae/session"
)

// NewEngineFromConfig builds an Engine from a loaded config.Config, converting
// each sub-config into the shape its owning subsystem expects via
// config.SchedulerConfig.ToScheduler, config.CookieConfig.ToCookie, and
// config.SessionConfig.ToRekeyPolicy. supportedModes/preferredMode are not
// part of config.Config since they depend on which identity material keys
// holds, not on deployment environment.
func NewEngineFromConfig(
	cfg config.Config,
	keys handshake.IdentityKeyStore,
	supportedModes []mode.AuthMode,
	preferredMode mode.AuthMode,
	sessionMetrics session.Metrics,
	cookieMetrics cookie.Metrics,
	schedMetrics scheduler.Metrics,
) (*Engine, error) {
	hsCfg := handshake.Config{
		SupportedModes: supportedModes,
		PreferredMode:  preferredMode,
		IdleTimeout:    cfg.Session.IdleTimeout,
		RekeyPolicy:    cfg.Session.ToRekeyPolicy(),
		QueueDepth:     cfg.Session.QueueDepth,
	}

	return NewEngine(
		keys,
		hsCfg,
		cfg.Cookie.ToCookie(),
		cfg.Scheduler.ToScheduler(),
		cfg.Session.IdleTimeout/4,
		sessionMetrics,
		cookieMetrics,
		schedMetrics,
	)
}
