package userflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// I18nInfo is the session's resolved locale and timezone.
type I18nInfo struct {
	Locale   string `json:"locale"`
	Timezone string `json:"timezone"`
}

// I18n resolves the session's locale and timezone. Explicit choices win
// over guessed values. When either is unset and guessIfUnset is true, both
// guessed slots are re-derived from geolocation and browser hints and
// persisted into the session; with guessing disabled the call fails with
// ErrI18nUnresolved instead.
func (f *Flow) I18n(ctx context.Context, sess SessionState, req RequestInfo, guessIfUnset bool) (I18nInfo, error) {
	info := readI18n(sess)
	if info.Locale != "" && info.Timezone != "" {
		return info, nil
	}

	if !guessIfUnset {
		return I18nInfo{}, ErrI18nUnresolved
	}

	geo := f.lookupGeo(ctx, req.RemoteAddr)
	sess.Set(sessionKeyGuessedLocale, f.guessLocale(req.AcceptLanguages))
	sess.Set(sessionKeyGuessedTimezone, f.guessTimezone(geo, req.BrowserTZOffsetMinutes))

	return readI18n(sess), nil
}

// SetI18n records an explicit user choice. Explicit values replace their
// guessed counterparts and are never re-guessed for this session. For an
// authenticated user the choice also persists to the account row.
func (f *Flow) SetI18n(ctx context.Context, sess SessionState, in SetI18nInput) error {
	if err := f.validateSetI18n(in); err != nil {
		return err
	}

	if in.Locale != "" {
		sess.Set(sessionKeyLocale, in.Locale)
		sess.Delete(sessionKeyGuessedLocale)
	}
	if in.Timezone != "" {
		sess.Set(sessionKeyTimezone, in.Timezone)
		sess.Delete(sessionKeyGuessedTimezone)
	}

	user, err := f.CurrentUser(ctx, sess)
	if err != nil || user == nil {
		return err
	}

	if in.Locale != "" {
		user.Locale = in.Locale
	}
	if in.Timezone != "" {
		user.Timezone = in.Timezone
	}

	ds := f.store.Fork()
	ds.Put(user)
	return ds.Commit(ctx)
}

func readI18n(sess SessionState) I18nInfo {
	info := I18nInfo{}
	if v, ok := sess.Get(sessionKeyLocale); ok && v != "" {
		info.Locale = v
	} else if v, ok := sess.Get(sessionKeyGuessedLocale); ok {
		info.Locale = v
	}
	if v, ok := sess.Get(sessionKeyTimezone); ok && v != "" {
		info.Timezone = v
	} else if v, ok := sess.Get(sessionKeyGuessedTimezone); ok {
		info.Timezone = v
	}
	return info
}

// guessLocale picks the first Accept-Language entry matching the supported
// list, comparing full tags first and primary subtags second.
func (f *Flow) guessLocale(accepted []string) string {
	for _, lang := range accepted {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		for _, supported := range f.config.Locales {
			if strings.EqualFold(lang, supported) {
				return supported
			}
		}
		primary, _, _ := strings.Cut(lang, "-")
		for _, supported := range f.config.Locales {
			if strings.EqualFold(primary, supported) {
				return supported
			}
		}
	}
	return f.config.DefaultLocale
}

// guessTimezone prefers the geolocated zone, then a zone matching the
// browser UTC offset, then the configured default.
func (f *Flow) guessTimezone(geo GeoInfo, browserOffsetMinutes int) string {
	if geo.Timezone != "" && f.validTimezone(geo.Timezone) {
		return geo.Timezone
	}

	if browserOffsetMinutes != 0 {
		if zone := f.zoneForOffset(browserOffsetMinutes); zone != "" {
			return zone
		}
	}

	return f.config.DefaultTimezone
}

// zoneForOffset finds a zone whose current UTC offset matches the browser
// clock. The configured whitelist is scanned first, which is what lets
// half hour offsets (India, Nepal) resolve to a real zone; whole hours
// otherwise map onto Etc/GMT zones, whose signs are inverted relative to
// common usage: UTC+2 is Etc/GMT-2.
func (f *Flow) zoneForOffset(offsetMinutes int) string {
	now := time.Now()
	for _, tz := range f.config.Timezones {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			continue
		}
		if _, offset := now.In(loc).Zone(); offset == offsetMinutes*60 {
			return tz
		}
	}

	if offsetMinutes%60 == 0 {
		hours := offsetMinutes / 60
		if hours >= -14 && hours <= 14 {
			zone := fmt.Sprintf("Etc/GMT%+d", -hours)
			if f.validTimezone(zone) {
				return zone
			}
		}
	}

	return ""
}

func (f *Flow) validLocale(locale string) bool {
	if locale == "" {
		return false
	}
	for _, supported := range f.config.Locales {
		if supported == locale {
			return true
		}
	}
	return false
}

// validTimezone accepts members of the configured whitelist, or any zone
// the tz database resolves when no whitelist is set. "Local" is excluded:
// it names the process environment, not a user choice.
func (f *Flow) validTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return false
	}

	if len(f.config.Timezones) > 0 {
		for _, tz := range f.config.Timezones {
			if tz == timezone {
				return true
			}
		}
		return false
	}

	_, err := time.LoadLocation(timezone)
	return err == nil
}

// TimezoneChoices returns the configured whitelist for UI pickers, or nil
// when any tz database zone is accepted.
func (f *Flow) TimezoneChoices() []string {
	return f.config.Timezones
}
