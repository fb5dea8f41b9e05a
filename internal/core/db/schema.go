package db

func (db *DB) initSchema() error {
	schema := `
	-- Sessions table
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT DEFAULT '',
		keywords TEXT DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		token_count INTEGER DEFAULT 0,
		work_dir TEXT DEFAULT '',
		is_archived BOOLEAN DEFAULT 0,
		sync_status TEXT DEFAULT 'local',
		sync_version INTEGER DEFAULT 1,
		indexed_at INTEGER DEFAULT 0,
		indexed_message_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_sync_status ON sessions(sync_status);

	-- Messages table
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER DEFAULT 0,
		timestamp INTEGER NOT NULL,
		has_code BOOLEAN DEFAULT 0,
		code_language TEXT DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_time ON messages(session_id, timestamp);

	-- Lexical projection: title/summary/keywords, kept in lock-step with
	-- the sessions table by the triggers below.
	CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
		title,
		summary,
		keywords,
		content='sessions',
		content_rowid='rowid',
		tokenize='porter unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS sessions_ai AFTER INSERT ON sessions BEGIN
		INSERT INTO sessions_fts(rowid, title, summary, keywords)
		VALUES (new.rowid, new.title, new.summary, new.keywords);
	END;

	-- External-content FTS5 cannot see the pre-update row from an AFTER
	-- trigger, so updates and deletes go through the special 'delete'
	-- command with the old values spelled out.
	CREATE TRIGGER IF NOT EXISTS sessions_au AFTER UPDATE ON sessions BEGIN
		INSERT INTO sessions_fts(sessions_fts, rowid, title, summary, keywords)
		VALUES ('delete', old.rowid, old.title, old.summary, old.keywords);
		INSERT INTO sessions_fts(rowid, title, summary, keywords)
		VALUES (new.rowid, new.title, new.summary, new.keywords);
	END;

	CREATE TRIGGER IF NOT EXISTS sessions_ad AFTER DELETE ON sessions BEGIN
		INSERT INTO sessions_fts(sessions_fts, rowid, title, summary, keywords)
		VALUES ('delete', old.rowid, old.title, old.summary, old.keywords);
	END;

	-- Vector projection: at most one embedding per session.
	CREATE TABLE IF NOT EXISTS session_vectors (
		session_id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		dims INTEGER NOT NULL,
		model TEXT DEFAULT '',
		computed_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	-- Append-only sync audit log
	CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sync_type TEXT NOT NULL CHECK(sync_type IN ('upload', 'download', 'conflict')),
		session_id TEXT,
		status TEXT NOT NULL CHECK(status IN ('success', 'failed')),
		error_message TEXT DEFAULT '',
		timestamp INTEGER NOT NULL
	);

	-- Key-value configuration/state table
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}
