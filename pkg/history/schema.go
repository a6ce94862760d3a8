package history

// Schema contains the SQL statements to create the diagnostics journal.
const Schema = `
-- Runs table: one row per diagnostics invocation
CREATE TABLE IF NOT EXISTS runs (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT UNIQUE NOT NULL,
    base_url    TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL
);

-- Results table: probe results in run order; NULL marks an absent field
CREATE TABLE IF NOT EXISTS results (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL,
    position      INTEGER NOT NULL,
    endpoint      TEXT,
    url           TEXT,
    request_data  TEXT,
    response_data TEXT,
    status_code   INTEGER,
    error         TEXT,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
    UNIQUE (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
`

// defaultListLimit bounds List when no limit is given.
const defaultListLimit = 20
