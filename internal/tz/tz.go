package tz

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	// fallback IANA database for hosts without a zoneinfo tree
	_ "time/tzdata"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

// Timezones are stored and compared in canonical form: trimmed + lowercased
// IANA name. time.LoadLocation is case sensitive, so the catalog keeps a
// lowercase -> proper-case index built from the host zoneinfo tree, plus a
// cache of every name it has successfully loaded.

var (
	indexOnce sync.Once
	index     map[string]string

	cacheMu sync.RWMutex
	cache   = map[string]*time.Location{}
)

var zoneinfoDirs = []string{
	"/usr/share/zoneinfo",
	"/usr/share/lib/zoneinfo",
	"/usr/lib/locale/TZ",
}

func buildIndex() {
	index = make(map[string]string)

	dirs := zoneinfoDirs
	if z := os.Getenv("ZONEINFO"); z != "" {
		dirs = append([]string{z}, dirs...)
	}

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		_ = filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
			if err != nil || fi.IsDir() {
				return nil
			}

			name := strings.TrimPrefix(path, dir+"/")

			// skip metadata files (zone.tab, tzdata.zi, ...) and the
			// posix/ and right/ duplicate trees
			if strings.Contains(name, ".") ||
				strings.HasPrefix(name, "posix/") ||
				strings.HasPrefix(name, "right/") {
				return nil
			}
			switch name {
			case "posixrules", "leapseconds", "localtime", "SECURITY":
				return nil
			}

			index[strings.ToLower(name)] = name
			return nil
		})

		if len(index) > 0 {
			return
		}
	}
}

func load(name string) (*time.Location, error) {
	cacheMu.RLock()
	loc, ok := cache[strings.ToLower(name)]
	cacheMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		indexOnce.Do(buildIndex)

		proper, found := index[strings.ToLower(name)]
		if !found {
			// no zoneinfo tree on this host: guess the proper case and
			// let the embedded database decide
			proper = titleCasePath(name)
		}
		loc, err = time.LoadLocation(proper)
		if err != nil {
			return nil, ErrInvalidTimezone
		}
	}

	cacheMu.Lock()
	cache[strings.ToLower(name)] = loc
	cacheMu.Unlock()

	return loc, nil
}

// titleCasePath maps "america/new_york" to "America/New_York". IANA names
// capitalize every /- and _-separated word, with a handful of exceptions
// (UTC, GMT, W-SU) that time.LoadLocation resolves case-insensitively enough
// via the index when a zoneinfo tree exists.
func titleCasePath(name string) string {
	b := []byte(name)
	up := true
	for i, c := range b {
		if up && c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		up = c == '/' || c == '_' || c == '-'
	}
	return string(b)
}

// Canonical validates a timezone string against the IANA database and
// returns it in canonical form.
func Canonical(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrInvalidTimezone
	}

	if _, err := load(name); err != nil {
		return "", err
	}

	return strings.ToLower(name), nil
}

// Location resolves a (canonical or raw) timezone name to a *time.Location.
func Location(name string) (*time.Location, error) {
	return load(strings.TrimSpace(name))
}

var localTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseLocalTime parses a strict "HH:MM" wall-clock string.
func ParseLocalTime(s string) (hour, minute int, err error) {
	m := localTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, errors.New("local time must be HH:MM")
	}

	// regexp guarantees two digits each
	hour = int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	minute = int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	return hour, minute, nil
}

// NextOccurrenceUTC computes the next instant at which the wall clock in the
// given timezone reads localTime ("HH:MM"). A candidate equal to now rolls
// over to the next day so a firing processed exactly on the boundary cannot
// re-fire immediately. DST is handled by time.Date normalization: adding one
// calendar day in the zone, not a fixed 24h.
func NextOccurrenceUTC(localTime, timezone string, now time.Time) (time.Time, error) {
	hour, minute, err := ParseLocalTime(localTime)
	if err != nil {
		return time.Time{}, err
	}

	loc, err := Location(timezone)
	if err != nil {
		return time.Time{}, err
	}

	nowLocal := now.In(loc)
	y, m, d := nowLocal.Date()

	candidate := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if !candidate.After(nowLocal) {
		candidate = time.Date(y, m, d+1, hour, minute, 0, 0, loc)
	}

	return candidate.UTC(), nil
}
