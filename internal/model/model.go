// SPDX-License-Identifier: MIT

// Package model holds the entity graph shared by the store, scheduler and
// operator surface. All timestamps are UTC.
package model

import (
	"time"
)

// SessionType identifies a discrete on-track activity within a round.
type SessionType string

const (
	SessionFP1              SessionType = "FP1"
	SessionFP2              SessionType = "FP2"
	SessionFP3              SessionType = "FP3"
	SessionQualifying       SessionType = "Qualifying"
	SessionSprint           SessionType = "Sprint"
	SessionSprintQualifying SessionType = "SprintQualifying"
	SessionRace             SessionType = "Race"
	SessionOther            SessionType = "Other"
)

// SessionTypes lists every concrete session type (excluding Other).
var SessionTypes = []SessionType{
	SessionFP1, SessionFP2, SessionFP3,
	SessionQualifying, SessionSprint, SessionSprintQualifying,
	SessionRace,
}

// ParseSessionType normalizes free-form session names to a SessionType.
func ParseSessionType(s string) (SessionType, bool) {
	switch normalizeToken(s) {
	case "fp1", "practiceone", "practice1", "freepractice1":
		return SessionFP1, true
	case "fp2", "practicetwo", "practice2", "freepractice2":
		return SessionFP2, true
	case "fp3", "practicethree", "practice3", "freepractice3":
		return SessionFP3, true
	case "qualifying", "qualy", "quali":
		return SessionQualifying, true
	case "sprint", "sprintrace":
		return SessionSprint, true
	case "sprintqualifying", "sprintqualy", "sprintshootout":
		return SessionSprintQualifying, true
	case "race", "grandprix":
		return SessionRace, true
	case "other":
		return SessionOther, true
	}
	return SessionOther, false
}

func normalizeToken(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		}
	}
	return string(out)
}

// Season is a championship year.
type Season struct {
	ID            int64      `json:"id"`
	Year          int        `json:"year"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
	Hidden        bool       `json:"hidden"`
}

// Round is a Grand Prix weekend.
type Round struct {
	ID          int64  `json:"id"`
	SeasonID    int64  `json:"season_id"`
	RoundNumber int    `json:"round_number"`
	Name        string `json:"name"`
	RawName     string `json:"raw_name,omitempty"` // provider raceName before sponsor stripping
	Circuit     string `json:"circuit"`
	City        string `json:"city"`
	Country     string `json:"country"`
	CircuitTZ   string `json:"circuit_tz,omitempty"` // IANA zone name, may be empty
	Winner      string `json:"winner,omitempty"`
	TeamWinner  string `json:"team_winner,omitempty"`
	FastLap     string `json:"fast_lap,omitempty"`
}

// Event is a session row within a round.
type Event struct {
	ID       int64       `json:"id"`
	RoundID  int64       `json:"round_id"`
	Type     SessionType `json:"type"`
	StartUTC *time.Time  `json:"start_utc,omitempty"`
	EndUTC   *time.Time  `json:"end_utc,omitempty"`
}

// IndexerKind discriminates indexer API dialects.
type IndexerKind string

const (
	IndexerNewznab IndexerKind = "newznab"
	IndexerHydra   IndexerKind = "hydra"
	IndexerCustom  IndexerKind = "custom"
)

// Indexer is a configured Newznab-compatible endpoint.
type Indexer struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Kind       IndexerKind `json:"kind"`
	BaseURL    string      `json:"base_url"`
	APIKey     string      `json:"api_key,omitempty"`
	Categories []int       `json:"categories,omitempty"`
	Priority   int         `json:"priority"`
	Enabled    bool        `json:"enabled"`
	LastError  string      `json:"last_error,omitempty"`
}

// DownloaderKind discriminates downloader API dialects.
type DownloaderKind string

const (
	DownloaderSAB  DownloaderKind = "sabnzbd"
	DownloaderNZBG DownloaderKind = "nzbget"
)

// Downloader is a configured NZB download client.
type Downloader struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Kind      DownloaderKind `json:"kind"`
	BaseURL   string         `json:"base_url"`
	APIKey    string         `json:"api_key,omitempty"`
	Category  string         `json:"category,omitempty"`
	Priority  int            `json:"priority"`
	Enabled   bool           `json:"enabled"`
	LastError string         `json:"last_error,omitempty"`
}

// SearchStatus is the lifecycle state of a scheduled search entry.
type SearchStatus string

const (
	StatusScheduled       SearchStatus = "scheduled"
	StatusRunning         SearchStatus = "running"
	StatusWaitingDownload SearchStatus = "waiting-download"
	StatusCompleted       SearchStatus = "completed"
	StatusFailed          SearchStatus = "failed"
	StatusPaused          SearchStatus = "paused"
)

// ScheduledSearch is a watch entry for one (round, session) pair.
type ScheduledSearch struct {
	ID            int64        `json:"id"`
	RoundID       int64        `json:"round_id"`
	EventType     SessionType  `json:"event_type"`
	Status        SearchStatus `json:"status"`
	DownloaderID  *int64       `json:"downloader_id,omitempty"` // optional per-entry override
	AddedAt       time.Time    `json:"added_at"`
	LastSearched  *time.Time   `json:"last_searched_at,omitempty"`
	NextRunAt     *time.Time   `json:"next_run_at,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	Attempts      int          `json:"attempts"`
	ChosenNZB     string       `json:"chosen_nzb,omitempty"`
	ChosenTitle   string       `json:"chosen_title,omitempty"`
	Tag           string       `json:"tag,omitempty"` // downloader-side marker, rc-<round>-<event>
	DispatchToken string       `json:"-"`             // guards against stale run results
	CompletedWhy  string       `json:"completed_reason,omitempty"`
	ForcePaused   bool         `json:"force_paused,omitempty"` // set when the owning season is hidden
}

// HistoryStatus is the downloader-side state of one acquisition attempt.
type HistoryStatus string

const (
	HistorySent        HistoryStatus = "sent"
	HistoryDownloading HistoryStatus = "downloading"
	HistoryCompleted   HistoryStatus = "completed"
	HistoryFailed      HistoryStatus = "failed"
)

// DownloadHistory is an append-only acquisition record.
type DownloadHistory struct {
	ID            int64         `json:"id"`
	EventID       int64         `json:"event_id"`
	IndexerID     int64         `json:"indexer_id"`
	DownloaderID  int64         `json:"downloader_id"`
	AcquisitionID string        `json:"acquisition_id,omitempty"` // downloader-side job id (nzo_id, NZBID)
	Title         string        `json:"title"`
	NZBURL        string        `json:"nzb_url"`
	Score         int           `json:"score"`
	Status        HistoryStatus `json:"status"`
	LastPolledAt  *time.Time    `json:"last_polled_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NotificationKind discriminates notification targets.
type NotificationKind string

const (
	NotifyApprise NotificationKind = "apprise"
	NotifyWebhook NotificationKind = "webhook"
)

// NotificationEvent is one lifecycle transition class.
type NotificationEvent string

const (
	EventDownloadStart    NotificationEvent = "download-start"
	EventDownloadComplete NotificationEvent = "download-complete"
	EventDownloadFail     NotificationEvent = "download-fail"
	EventTest             NotificationEvent = "test"
)

// NotificationTarget is one configured notification endpoint.
type NotificationTarget struct {
	ID            int64               `json:"id"`
	Kind          NotificationKind    `json:"kind"`
	Name          string              `json:"name"`
	URL           string              `json:"url"`
	Events        []NotificationEvent `json:"events,omitempty"`
	WebhookSecret string              `json:"webhook_secret,omitempty"`
}

// Wants reports whether the target's mask contains ev. Test always passes.
func (t NotificationTarget) Wants(ev NotificationEvent) bool {
	if ev == EventTest {
		return true
	}
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == ev {
			return true
		}
	}
	return false
}

// Settings is the singleton runtime configuration row.
type Settings struct {
	MinResolution         int           `json:"min_resolution"`
	MaxResolution         int           `json:"max_resolution"`
	AllowHDR              bool          `json:"allow_hdr"`
	PreferredCodecs       []string      `json:"preferred_codecs,omitempty"`
	PreferredGroups       []string      `json:"preferred_groups,omitempty"`
	AutoDownloadThreshold int           `json:"auto_download_threshold"`
	DefaultDownloaderID   *int64        `json:"default_downloader_id,omitempty"`
	EventAllowlist        []SessionType `json:"event_allowlist,omitempty"`
	LogLevel              string        `json:"log_level"`
	SchedulerTickSeconds  int           `json:"scheduler_tick_seconds"`
	MaxAgePreDays         int           `json:"max_age_pre_days"`
	MaxAgePostDays        int           `json:"max_age_post_days"`
	AggressiveWindowH     int           `json:"aggressive_window_hours"`
	DecayIntervalH        int           `json:"decay_interval_hours"`
	StopAfterDays         int           `json:"stop_after_days"`
	JitterSeconds         int           `json:"jitter_seconds"`
	PerIndexerConcurrency int           `json:"per_indexer_concurrency"`
	GlobalConcurrency     int           `json:"global_concurrency"`
}

// DefaultSettings returns the settings written on first boot.
func DefaultSettings() Settings {
	return Settings{
		MinResolution:         720,
		MaxResolution:         1080,
		AllowHDR:              true,
		AutoDownloadThreshold: 70,
		EventAllowlist:        nil, // empty allowlist means everything
		LogLevel:              "info",
		SchedulerTickSeconds:  600,
		MaxAgePreDays:         14,
		MaxAgePostDays:        7,
		AggressiveWindowH:     24,
		DecayIntervalH:        6,
		StopAfterDays:         14,
		JitterSeconds:         120,
		PerIndexerConcurrency: 1,
		GlobalConcurrency:     3,
	}
}

// AllowsEvent reports whether the allowlist permits the session type.
func (s Settings) AllowsEvent(t SessionType) bool {
	if len(s.EventAllowlist) == 0 {
		return true
	}
	for _, a := range s.EventAllowlist {
		if a == t {
			return true
		}
	}
	return false
}
