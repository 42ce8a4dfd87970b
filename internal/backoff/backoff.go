// Package backoff computes wait durations between retries. It is pure
// computation: the only input beyond the retry count is transcript text and
// provider rate-limit metadata supplied by the caller.
package backoff

import (
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

const (
	// DefaultBaseWait is the first-retry wait before doubling.
	DefaultBaseWait = 30 * time.Second
	// DefaultMaxWait caps exponential growth.
	DefaultMaxWait = 15 * time.Minute
	// jitterRange is the upper bound of the uniform jitter added to each wait.
	jitterRange = 30 * time.Second
	// resetBuffer is added to provider reset times so we never retry a few
	// seconds before capacity actually returns.
	resetBuffer = 120 * time.Second
)

// Estimator computes retry waits. The zero value is not usable; call New.
type Estimator struct {
	BaseWait    time.Duration
	MaxWait     time.Duration
	ProviderRPM int

	// Injection points for deterministic tests.
	jitter func() time.Duration
	now    func() time.Time
}

// New returns an Estimator with the given limits. A providerRPM of 0
// disables the RPM-derived fallback heuristic.
func New(base, max time.Duration, providerRPM int) *Estimator {
	if base <= 0 {
		base = DefaultBaseWait
	}
	if max <= 0 {
		max = DefaultMaxWait
	}
	return &Estimator{
		BaseWait:    base,
		MaxWait:     max,
		ProviderRPM: providerRPM,
		jitter:      func() time.Duration { return time.Duration(rand.Int63n(int64(jitterRange))) },
		now:         time.Now,
	}
}

// ExponentialWait returns min(MaxWait, BaseWait * 2^retry + jitter).
// The result is non-decreasing in retry until the cap is reached.
func (e *Estimator) ExponentialWait(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}

	wait := e.BaseWait
	for i := 0; i < retry; i++ {
		wait *= 2
		if wait >= e.MaxWait {
			return e.MaxWait
		}
	}

	wait += e.jitter()
	if wait > e.MaxWait {
		return e.MaxWait
	}
	return wait
}

var (
	indicatorRe  = regexp.MustCompile(`(?i)(\b429\b|rate.?limit|quota exceeded|retry after|usage limit)`)
	retryAfterRe = regexp.MustCompile(`(?i)retry.?after:?\s*(\d+)`)
	resetsAtRe   = regexp.MustCompile(`(?i)resets?\s+(?:at\s+)?(\d{1,2})\s*(am|pm)`)
)

// DetectRateLimit scans transcript text for rate-limit indicators and
// returns the wait until capacity returns, or 0 if no indicator is present.
//
// Resolution order: a provider "resets <hour><am|pm>" phrase gives an exact
// wall-clock resume time (plus a safety buffer); a Retry-After header value
// is used literally; otherwise the wait falls back to a provider-RPM-derived
// heuristic clamped to [60s, 300s].
func (e *Estimator) DetectRateLimit(logText string) time.Duration {
	if !indicatorRe.MatchString(logText) && !resetsAtRe.MatchString(logText) {
		return 0
	}

	if m := resetsAtRe.FindStringSubmatch(logText); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err == nil && hour >= 1 && hour <= 12 {
			return e.waitUntilHour(hour, m[2]) + resetBuffer
		}
	}

	if m := retryAfterRe.FindStringSubmatch(logText); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	rpm := e.ProviderRPM
	if rpm <= 0 {
		rpm = 60
	}
	wait := time.Duration(120*60/rpm) * time.Second
	if wait < 60*time.Second {
		wait = 60 * time.Second
	}
	if wait > 300*time.Second {
		wait = 300 * time.Second
	}
	return wait
}

// Wait returns the duration to sleep before the next retry. A rate-limit
// estimate wins over exponential backoff: the provider told us exactly when
// capacity returns.
func (e *Estimator) Wait(retry int, logText string) time.Duration {
	if rl := e.DetectRateLimit(logText); rl > 0 {
		return rl
	}
	return e.ExponentialWait(retry)
}

// waitUntilHour returns the duration until the given 12-hour clock time,
// adding 24h if that time has already passed today.
func (e *Estimator) waitUntilHour(hour int, meridiem string) time.Duration {
	// Convert to 24-hour clock.
	switch meridiem {
	case "pm", "PM", "Pm", "pM":
		if hour != 12 {
			hour += 12
		}
	default:
		if hour == 12 {
			hour = 0
		}
	}

	now := e.now()
	reset := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !reset.After(now) {
		reset = reset.Add(24 * time.Hour)
	}
	return reset.Sub(now)
}
