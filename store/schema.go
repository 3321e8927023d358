package store

// Schema is shared by SQLite and Postgres. Prices and sizes are TEXT so
// decimals round trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	seq INTEGER NOT NULL,
	trade_id TEXT NOT NULL,
	exchange INTEGER NOT NULL,
	conditions TEXT NOT NULL,
	ts BIGINT NOT NULL,
	price TEXT NOT NULL,
	size TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`
