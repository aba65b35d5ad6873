package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Ring is the local keyring, one row per member id. The private key stays in
// this file-backed database and is never written to the document store.
type Ring struct {
	db *sql.DB
}

// OpenRing opens (and if needed initializes) the keyring database at path.
func OpenRing(path string) (*Ring, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to keyring: %w", err)
	}

	r := &Ring{db: db}
	if err := r.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Ring) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Ring) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS keypairs (
		member_id TEXT PRIMARY KEY,
		public_key BLOB NOT NULL,
		private_key BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to initialize keyring schema: %w", err)
	}
	return nil
}

var ErrNoKey = errors.New("keys: no keypair stored for member")

// Load returns the member's stored keypair.
func (r *Ring) Load(ctx context.Context, memberID string) (KeyPair, error) {
	var pubRaw, privRaw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT public_key, private_key FROM keypairs WHERE member_id = ?`, memberID).
		Scan(&pubRaw, &privRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return KeyPair{}, ErrNoKey
		}
		return KeyPair{}, fmt.Errorf("failed to read keypair: %w", err)
	}
	if len(pubRaw) != 32 || len(privRaw) != 32 {
		return KeyPair{}, fmt.Errorf("corrupt keypair for %s", memberID)
	}

	var kp KeyPair
	copy(kp.Public[:], pubRaw)
	copy(kp.Private[:], privRaw)
	return kp, nil
}

// Store saves the member's keypair, replacing any previous one.
func (r *Ring) Store(ctx context.Context, memberID string, kp KeyPair) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO keypairs (member_id, public_key, private_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member_id) DO UPDATE SET
			public_key = excluded.public_key,
			private_key = excluded.private_key,
			created_at = excluded.created_at
	`, memberID, kp.Public[:], kp.Private[:], time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store keypair: %w", err)
	}
	return nil
}

// Ensure loads the member's keypair, generating and persisting one on first
// use.
func (r *Ring) Ensure(ctx context.Context, memberID string) (KeyPair, error) {
	kp, err := r.Load(ctx, memberID)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, ErrNoKey) {
		return KeyPair{}, err
	}

	kp, err = Generate()
	if err != nil {
		return KeyPair{}, err
	}
	if err := r.Store(ctx, memberID, kp); err != nil {
		return KeyPair{}, err
	}
	return kp, nil
}
