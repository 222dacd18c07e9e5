// SPDX-License-Identifier: MIT

package store

const schema = `
CREATE TABLE IF NOT EXISTS seasons (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	year           INTEGER NOT NULL UNIQUE,
	last_refreshed TEXT,
	hidden         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_seasons_year ON seasons(year);

CREATE TABLE IF NOT EXISTS rounds (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	season_id    INTEGER NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
	round_number INTEGER NOT NULL,
	name         TEXT NOT NULL,
	raw_name     TEXT NOT NULL DEFAULT '',
	circuit      TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	circuit_tz   TEXT,
	winner       TEXT NOT NULL DEFAULT '',
	team_winner  TEXT NOT NULL DEFAULT '',
	fast_lap     TEXT NOT NULL DEFAULT '',
	UNIQUE(season_id, round_number)
);

CREATE INDEX IF NOT EXISTS idx_rounds_season ON rounds(season_id, round_number);

CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id  INTEGER NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	type      TEXT NOT NULL,
	start_utc TEXT,
	end_utc   TEXT,
	UNIQUE(round_id, type)
);

CREATE INDEX IF NOT EXISTS idx_events_round ON events(round_id, type);

CREATE TABLE IF NOT EXISTS indexers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'newznab',
	base_url   TEXT NOT NULL,
	api_key    TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '[]',
	priority   INTEGER NOT NULL DEFAULT 0,
	enabled    INTEGER NOT NULL DEFAULT 1,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS downloaders (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	base_url   TEXT NOT NULL,
	api_key    TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	priority   INTEGER NOT NULL DEFAULT 0,
	enabled    INTEGER NOT NULL DEFAULT 1,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notification_targets (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL,
	url            TEXT NOT NULL,
	events         TEXT NOT NULL DEFAULT '[]',
	webhook_secret TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scheduled_searches (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id         INTEGER NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	event_type       TEXT NOT NULL,
	status           TEXT NOT NULL,
	downloader_id    INTEGER,
	added_at         TEXT NOT NULL,
	last_searched_at TEXT,
	next_run_at      TEXT,
	last_error       TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0,
	chosen_nzb       TEXT NOT NULL DEFAULT '',
	chosen_title     TEXT NOT NULL DEFAULT '',
	tag              TEXT NOT NULL DEFAULT '',
	dispatch_token   TEXT NOT NULL DEFAULT '',
	completed_reason TEXT NOT NULL DEFAULT '',
	force_paused     INTEGER NOT NULL DEFAULT 0,
	UNIQUE(round_id, event_type)
);

CREATE INDEX IF NOT EXISTS idx_searches_due ON scheduled_searches(status, next_run_at);

CREATE TABLE IF NOT EXISTS download_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id       INTEGER NOT NULL,
	indexer_id     INTEGER NOT NULL DEFAULT 0,
	downloader_id  INTEGER NOT NULL,
	acquisition_id TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL,
	nzb_url        TEXT NOT NULL,
	score          INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	last_polled_at TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_event ON download_history(event_id);

CREATE TABLE IF NOT EXISTS cached_round_search (
	round_id     INTEGER NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	fingerprint  TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	ttl_hours    INTEGER NOT NULL,
	results_json TEXT NOT NULL,
	PRIMARY KEY (round_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS venue_aliases (
	circuit_key TEXT PRIMARY KEY,
	aliases     TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS settings (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL
);
`
