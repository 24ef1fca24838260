package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/redmonkez12/todo-app/internal/todo"
)

type config struct {
	APIURL  string
	Home    string
	Timeout time.Duration
	Debug   bool
}

// loadConfig reads TODO_* variables, from $TODO_HOME/.env and ./.env when present
func loadConfig() (*config, error) {
	home := os.Getenv("TODO_HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to find home directory: %w", err)
		}
		home = filepath.Join(dir, ".todo")
	}

	// existing variables win over both files
	_ = godotenv.Load(filepath.Join(home, ".env"))
	_ = godotenv.Load()

	cfg := &config{
		APIURL: strings.TrimRight(getEnv("TODO_API_URL", "http://localhost:8080"), "/"),
		Home:   home,
		Debug:  os.Getenv("TODO_DEBUG") != "",
	}

	cfg.Timeout = 15 * time.Second
	if v := os.Getenv("TODO_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TODO_TIMEOUT %q: %w", v, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

func (c *config) guestDir() string { return filepath.Join(c.Home, "guest") }
func (c *config) logFile() string  { return filepath.Join(c.Home, "todo.log") }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var errBadDue = errors.New("due date must be YYYY-MM-DD, YYYY-MM-DD HH:MM, RFC 3339 or a duration like 3d or 4h")

// parseDue turns a --due flag into epoch milliseconds. Dates without a time
// mean the end of that day.
func parseDue(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t.Add(24*time.Hour - time.Minute).UnixMilli(), nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n >= 0 {
			return now.AddDate(0, 0, n).UnixMilli(), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d).UnixMilli(), nil
	}
	return 0, errBadDue
}

func parsePriority(s string) (todo.Priority, error) {
	p := todo.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("priority must be low, medium or high, got %q", s)
	}
	return p, nil
}

var (
	errNoMatch  = errors.New("no entry matches")
	errAmbiguous = errors.New("id prefix matches more than one entry")
)

// resolveID accepts a full id or a unique prefix of one
func resolveID(entries []todo.Entry, ref string) (string, error) {
	var match string
	for _, e := range entries {
		if e.ID == ref {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", errAmbiguous, ref)
			}
			match = e.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", errNoMatch, ref)
	}
	return match, nil
}
