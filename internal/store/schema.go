package store

// Schema contains the SQL schema for the mail record store.
const Schema = `
-- Mail accounts
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    host TEXT,
    port INTEGER,
    smtp_host TEXT,
    smtp_port INTEGER,
    address TEXT NOT NULL,
    display_name TEXT,
    secret TEXT,
    access_token TEXT,
    refresh_token TEXT,
    token_expiry DATETIME,
    last_sync_status TEXT,
    last_sync_error TEXT,
    last_synced_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Normalized messages; (account_id, message_uid) is the idempotency key
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    message_uid TEXT NOT NULL,
    thread_id TEXT,
    folder TEXT NOT NULL,
    subject TEXT,
    sender_email TEXT,
    sender_name TEXT,
    recipients TEXT,
    body_text TEXT,
    body_html TEXT,
    snippet TEXT,
    is_read INTEGER NOT NULL DEFAULT 0,
    is_starred INTEGER NOT NULL DEFAULT 0,
    has_attachments INTEGER NOT NULL DEFAULT 0,
    received_at DATETIME NOT NULL,
    synced_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE,
    UNIQUE(account_id, message_uid)
);

-- Owner profiles (signature and footer components)
CREATE TABLE IF NOT EXISTS profiles (
    owner_id TEXT PRIMARY KEY,
    signature TEXT,
    footer_company TEXT,
    footer_extra TEXT,
    footer_website TEXT,
    footer_bank TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_account_id ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(account_id, folder);
CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender_email ON messages(sender_email);
CREATE INDEX IF NOT EXISTS idx_accounts_owner_id ON accounts(owner_id);

-- Full-text search index
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender_email,
    sender_name,
    body_text,
    content='messages',
    content_rowid='id'
);

-- Triggers for FTS. The index is external-content, so old rows must
-- be removed with the fts5 'delete' command carrying the old values.
CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, sender_email, sender_name, body_text)
    VALUES (new.id, new.subject, new.sender_email, new.sender_name, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender_email, sender_name, body_text)
    VALUES ('delete', old.id, old.subject, old.sender_email, old.sender_name, old.body_text);
    INSERT INTO messages_fts(rowid, subject, sender_email, sender_name, body_text)
    VALUES (new.id, new.subject, new.sender_email, new.sender_name, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender_email, sender_name, body_text)
    VALUES ('delete', old.id, old.subject, old.sender_email, old.sender_name, old.body_text);
END;
`
