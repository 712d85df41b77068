package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const clientColumns = `id, name, company, description, date, completion_date, completed, url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var item Client
	err := row.Scan(&item.ID, &item.Name, &item.Company, &item.Description, &item.Date, &item.CompletionDate, &item.Completed, &item.URL, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY date DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		item, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	item, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=$1`, clientID))
	if err != nil {
		return Client{}, err
	}
	return item, nil
}

// InsertClient reports false without error when the id is already taken.
func (s *PostgresStore) InsertClient(ctx context.Context, item Client) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, company, description, date, completion_date, completed, url)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Name, item.Company, item.Description, item.Date, item.CompletionDate, item.URL)
	if err != nil {
		return false, fmt.Errorf("insert client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert client rows: %w", err)
	}
	return affected == 1, nil
}

// PatchClient writes only the non-nil fields of patch.
func (s *PostgresStore) PatchClient(ctx context.Context, clientID string, patch ClientPatch) error {
	if patch.Empty() {
		return nil
	}
	sets := make([]string, 0, 6)
	args := []any{clientID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Company != nil {
		add("company", *patch.Company)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Date != nil {
		add("date", *patch.Date)
	}
	if patch.CompletionDate != nil {
		add("completion_date", *patch.CompletionDate)
	}
	sets = append(sets, "updated_at=NOW()")

	result, err := s.db.ExecContext(ctx, `UPDATE clients SET `+strings.Join(sets, ", ")+` WHERE id=$1`, args...)
	if err != nil {
		return fmt.Errorf("patch client: %w", err)
	}
	return requireRow(result)
}

// MarkClientComplete sets completed once; there is no statement that clears it.
func (s *PostgresStore) MarkClientComplete(ctx context.Context, clientID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE clients SET completed=TRUE, updated_at=NOW() WHERE id=$1 AND completed=FALSE`, clientID)
	if err != nil {
		return false, fmt.Errorf("complete client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete client rows: %w", err)
	}
	if affected == 1 {
		return true, nil
	}
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteClient removes the client row only; its updates are kept.
func (s *PostgresStore) DeleteClient(ctx context.Context, clientID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id=$1`, clientID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return requireRow(result)
}

const updateColumns = `id, client_id, title, description, file_url, date, completed, comments`

func scanUpdate(row rowScanner) (Update, error) {
	var item Update
	var commentsRaw []byte
	if err := row.Scan(&item.ID, &item.ClientID, &item.Title, &item.Description, &item.FileURL, &item.Date, &item.Completed, &commentsRaw); err != nil {
		return Update{}, err
	}
	comments, err := decodeComments(commentsRaw)
	if err != nil {
		return Update{}, err
	}
	item.Comments = comments
	return item, nil
}

func decodeComments(raw []byte) ([]string, error) {
	comments := make([]string, 0)
	if len(raw) == 0 {
		return comments, nil
	}
	if err := json.Unmarshal(raw, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}

func (s *PostgresStore) ListUpdates(ctx context.Context) ([]Update, error) {
	return s.queryUpdates(ctx, `SELECT `+updateColumns+` FROM updates ORDER BY date ASC, id ASC`)
}

func (s *PostgresStore) ListClientUpdates(ctx context.Context, clientID string) ([]Update, error) {
	return s.queryUpdates(ctx, `SELECT `+updateColumns+` FROM updates WHERE client_id=$1 ORDER BY date ASC, id ASC`, clientID)
}

func (s *PostgresStore) queryUpdates(ctx context.Context, query string, args ...any) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	items := make([]Update, 0)
	for rows.Next() {
		item, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetUpdate(ctx context.Context, updateID string) (Update, error) {
	item, err := scanUpdate(s.db.QueryRowContext(ctx, `SELECT `+updateColumns+` FROM updates WHERE id=$1`, updateID))
	if err != nil {
		return Update{}, err
	}
	return item, nil
}

// InsertUpdate stores item with a server-assigned date and returns the stored row.
func (s *PostgresStore) InsertUpdate(ctx context.Context, item Update) (Update, error) {
	stored, err := scanUpdate(s.db.QueryRowContext(ctx, `
		INSERT INTO updates (id, client_id, title, description, file_url, date, completed, comments)
		VALUES ($1, $2, $3, $4, $5, NOW(), FALSE, '[]'::jsonb)
		RETURNING `+updateColumns, item.ID, item.ClientID, item.Title, item.Description, item.FileURL))
	if err != nil {
		return Update{}, fmt.Errorf("insert update: %w", err)
	}
	return stored, nil
}

// MarkUpdateSeen reports whether this call flipped the flag. A second call is
// a no-op at the row level.
func (s *PostgresStore) MarkUpdateSeen(ctx context.Context, updateID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE updates SET completed=TRUE WHERE id=$1 AND completed=FALSE`, updateID)
	if err != nil {
		return false, fmt.Errorf("mark update seen: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark update seen rows: %w", err)
	}
	return affected == 1, nil
}

// AppendComment appends text to the update's comment list in a single
// statement, so concurrent commenters cannot overwrite each other.
func (s *PostgresStore) AppendComment(ctx context.Context, updateID, text string) ([]string, error) {
	var commentsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		UPDATE updates SET comments = comments || jsonb_build_array($2::text)
		WHERE id=$1
		RETURNING comments
	`, updateID, text).Scan(&commentsRaw)
	if err != nil {
		return nil, err
	}
	return decodeComments(commentsRaw)
}

const userColumns = `id, email, password_hash, name, position, profile_image, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Position, &user.ProfileImage, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name)
		VALUES ($1, LOWER($2), $3, $4)
	`, user.ID, user.Email, user.PasswordHash, user.Name)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=LOWER($1)`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY LOWER(name) ASC, email ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// UpdateUserProfile merges the non-nil fields of patch into the user row.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID string, patch ProfilePatch) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			position = COALESCE($3, position),
			profile_image = COALESCE($4, profile_image),
			updated_at = NOW()
		WHERE id=$1
	`, userID, nullableString(patch.Name), nullableString(patch.Position), nullableString(patch.ProfileImage))
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) GetAccessCode(ctx context.Context, documentID string) (string, error) {
	var code string
	if err := s.db.QueryRowContext(ctx, `SELECT code FROM access WHERE id=$1`, documentID).Scan(&code); err != nil {
		return "", err
	}
	return code, nil
}

func (s *PostgresStore) SetAccessCode(ctx context.Context, documentID, code string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access (id, code) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET code=EXCLUDED.code, updated_at=NOW()
	`, documentID, code)
	if err != nil {
		return fmt.Errorf("set access code: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the user id of a live, unrevoked session.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
