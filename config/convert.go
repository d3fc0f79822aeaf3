package config

import (
	"github.com/b4ae-project/b4ae/cookie"
	"github.com/b4ae-project/b4ae/scheduler"
	"github.com/b4ae-project/b4ae/session"
)

// ToScheduler converts the loaded scheduler knobs into scheduler.Config.
func (c SchedulerConfig) ToScheduler() scheduler.Config {
	return scheduler.Config{
		RateItemsPerSecond: c.RateItemsPerSecond,
		MinCoverFraction:   c.MinCoverFraction,
		QueueDepth:         c.QueueDepth,
		CoverWindow:        c.CoverWindow,
	}
}

// ToCookie converts the loaded cookie knobs into cookie.Config.
func (c CookieConfig) ToCookie() cookie.Config {
	return cookie.Config{
		RotationPeriod:      c.RotationPeriod,
		Timeout:             c.Timeout,
		ExpectedPerRotation: c.ExpectedPerRotation,
		FalsePositiveRate:   c.FalsePositiveRate,
	}
}

// ToRekeyPolicy converts the loaded session knobs into session.RekeyPolicy.
func (c SessionConfig) ToRekeyPolicy() session.RekeyPolicy {
	return session.RekeyPolicy{
		MaxMessages: c.MaxMessages,
		MaxBytes:    c.MaxBytes,
		MaxAge:      c.MaxAge,
	}
}
