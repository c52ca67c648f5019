package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the embedded schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function instead of the
// embedded schema. Useful for tests that need a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive
	// and serializes writers, which gives message inserts a total order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewFromDB wraps an already opened database without touching its schema.
func NewFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, email, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = fromMicros(createdAt)

	return &user, nil
}

// UpsertUser creates or refreshes a user mirror row.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *store.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, toMicros(user.CreatedAt)); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ==== ConversationStore implementation ====

const conversationColumns = `
	c.id, c.type, COALESCE(c.title, ''), COALESCE(c.property_id, ''), c.direct_key,
	c.last_message_at, c.created_by, c.created_at
`

// CreateConversation inserts the conversation and its participants in one transaction.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *store.Conversation, participantIDs []string) (*store.Conversation, error) {
	if conv.DirectKey != nil {
		id, err := s.directConversationID(ctx, *conv.DirectKey)
		if err == nil {
			return s.rejoinDirect(ctx, id, conv, participantIDs)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check existing conversation: %w", err)
		}
	}

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO conversations (id, type, title, property_id, direct_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		conv.ID,
		string(conv.Type),
		nullString(conv.Title),
		nullString(conv.PropertyID),
		conv.DirectKey,
		conv.CreatedBy,
		toMicros(conv.CreatedAt),
	)
	if err != nil {
		if conv.DirectKey != nil && isConstraint(err, sqlite3.ErrConstraintUnique) {
			// Lost a race with a concurrent creator of the same direct conversation.
			_ = tx.Rollback()
			id, err := s.directConversationID(ctx, *conv.DirectKey)
			if err != nil {
				return nil, err
			}
			return s.rejoinDirect(ctx, id, conv, participantIDs)
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	memberQuery := `
		INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`
	joinedAt := toMicros(conv.CreatedAt)
	if _, err := tx.ExecContext(ctx, memberQuery, conv.ID, conv.CreatedBy, string(store.RoleOwner), joinedAt); err != nil {
		return nil, fmt.Errorf("add owner: %w", mapConstraint(err))
	}
	seen := map[string]struct{}{conv.CreatedBy: {}}
	for _, userID := range participantIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if _, err := tx.ExecContext(ctx, memberQuery, conv.ID, userID, string(store.RoleParticipant), joinedAt); err != nil {
			return nil, fmt.Errorf("add participant %s: %w", userID, mapConstraint(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetConversation(ctx, conv.ID)
}

// GetConversation retrieves a conversation by ID with its participants.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.id = ?`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	participants, err := s.listParticipants(ctx, `WHERE p.conversation_id = ?`, id)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants

	return conv, nil
}

func (s *SQLiteStore) directConversationID(ctx context.Context, directKey string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE direct_key = ?`, directKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("conversation %s: %w", directKey, store.ErrNotFound)
		}
		return "", fmt.Errorf("query conversation: %w", err)
	}
	return id, nil
}

// rejoinDirect returns an existing direct conversation after restoring the
// participant rows of both parties. Someone who left it gets it back on re-create.
func (s *SQLiteStore) rejoinDirect(ctx context.Context, id string, conv *store.Conversation, participantIDs []string) (*store.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var owner string
	if err := tx.QueryRowContext(ctx, `SELECT created_by FROM conversations WHERE id = ?`, id).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	joinedAt := conv.CreatedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`
	for _, userID := range append([]string{conv.CreatedBy}, participantIDs...) {
		role := store.RoleParticipant
		if userID == owner {
			role = store.RoleOwner
		}
		if _, err := tx.ExecContext(ctx, query, id, userID, string(role), toMicros(joinedAt)); err != nil {
			return nil, fmt.Errorf("restore participant %s: %w", userID, mapConstraint(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// ListConversations lists the user's conversations, most recent activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	byID := make(map[string]*store.Conversation)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
		byID[conv.ID] = conv
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	if len(conversations) == 0 {
		return conversations, nil
	}

	participants, err := s.listParticipants(ctx, `
		WHERE p.conversation_id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = ?
		)`, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if conv, ok := byID[p.ConversationID]; ok {
			conv.Participants = append(conv.Participants, p)
		}
	}

	return conversations, nil
}

// GetParticipant returns store.ErrNotFound when the user is not a participant.
func (s *SQLiteStore) GetParticipant(ctx context.Context, conversationID, userID string) (*store.Participant, error) {
	participants, err := s.listParticipants(ctx, `WHERE p.conversation_id = ? AND p.user_id = ?`, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("participant %s in %s: %w", userID, conversationID, store.ErrNotFound)
	}
	return participants[0], nil
}

// SharesConversation reports whether userA and userB are participants of a common conversation.
func (s *SQLiteStore) SharesConversation(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM conversation_participants a
			JOIN conversation_participants b ON b.conversation_id = a.conversation_id
			WHERE a.user_id = ? AND b.user_id = ?
		)
	`
	var shared bool
	if err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(&shared); err != nil {
		return false, fmt.Errorf("query shared conversation: %w", err)
	}
	return shared, nil
}

// RemoveParticipant deletes the participant row.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	query := `
		DELETE FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return requireAffected(result, "participant")
}

// MarkRead resets the participant's unread count.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	query := `
		UPDATE conversation_participants
		SET unread_count = 0, last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, toMicros(at), conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return requireAffected(result, "participant")
}

func (s *SQLiteStore) listParticipants(ctx context.Context, where string, args ...any) ([]*store.Participant, error) {
	query := `
		SELECT p.conversation_id, p.user_id, p.role, p.last_read_at, p.unread_count, p.joined_at,
		       u.name, u.email, u.created_at
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		` + where + `
		ORDER BY p.joined_at ASC, p.user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []*store.Participant
	for rows.Next() {
		var p store.Participant
		var role string
		var lastRead sql.NullInt64
		var joinedAt, userCreated int64
		user := &store.User{}
		if err := rows.Scan(
			&p.ConversationID,
			&p.UserID,
			&role,
			&lastRead,
			&p.UnreadCount,
			&joinedAt,
			&user.Name,
			&user.Email,
			&userCreated,
		); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Role = store.ParticipantRole(role)
		p.LastReadAt = optionalTime(lastRead)
		p.JoinedAt = fromMicros(joinedAt)
		user.ID = p.UserID
		user.CreatedAt = fromMicros(userCreated)
		p.User = user
		participants = append(participants, &p)
	}

	return participants, rows.Err()
}

// ==== MessageStore implementation ====

const messageColumns = `
	m.id, m.conversation_id, m.seq, m.sender_id, u.name, u.email,
	m.content, m.content_type, COALESCE(m.attachment_url, ''), m.edited, m.created_at, m.updated_at
`

// CreateMessage persists msg and updates conversation and unread state atomically.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var lastMessageAt sql.NullInt64
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_message_at, message_seq FROM conversations WHERE id = ?`,
		msg.ConversationID,
	).Scan(&lastMessageAt, &seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, store.ErrNotFound)
		}
		return fmt.Errorf("query conversation: %w", err)
	}

	// created_at must be strictly increasing within a conversation.
	createdAt := toMicros(msg.CreatedAt)
	if lastMessageAt.Valid && createdAt <= lastMessageAt.Int64 {
		createdAt = lastMessageAt.Int64 + 1
	}
	seq++

	insert := `
		INSERT INTO messages (id, conversation_id, seq, sender_id, content, content_type, attachment_url, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	if _, err := tx.ExecContext(ctx, insert,
		msg.ID,
		msg.ConversationID,
		seq,
		msg.SenderID,
		msg.Content,
		string(msg.ContentType),
		nullString(msg.AttachmentURL),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", mapConstraint(err))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ?, message_seq = ? WHERE id = ?`,
		createdAt, seq, msg.ConversationID,
	); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_participants SET unread_count = unread_count + 1 WHERE conversation_id = ? AND user_id <> ?`,
		msg.ConversationID, msg.SenderID,
	); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	msg.Seq = seq
	msg.CreatedAt = fromMicros(createdAt)
	msg.Edited = false
	return nil
}

// GetMessage retrieves a message with its sender resolved.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return msg, nil
}

// UpdateMessageContent replaces content and marks the message edited.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, senderID, content string, at time.Time) error {
	query := `
		UPDATE messages
		SET content = ?, edited = 1, updated_at = ?
		WHERE id = ? AND sender_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, content, toMicros(at), id, senderID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return requireAffected(result, "message")
}

// DeleteMessage hard-deletes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, senderID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND sender_id = ?`, id, senderID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(result, "message")
}

// ListMessages retrieves a page of history in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*store.Message, error) {
	cursor := int64(math.MaxInt64)
	if before != nil {
		cursor = toMicros(*before)
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ? AND m.created_at < ?
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

// ==== helpers ====

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*store.Conversation, error) {
	var conv store.Conversation
	var convType string
	var directKey sql.NullString
	var lastMessageAt sql.NullInt64
	var createdAt int64
	err := row.Scan(
		&conv.ID,
		&convType,
		&conv.Title,
		&conv.PropertyID,
		&directKey,
		&lastMessageAt,
		&conv.CreatedBy,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	conv.Type = store.ConversationType(convType)
	if directKey.Valid {
		conv.DirectKey = &directKey.String
	}
	conv.LastMessageAt = optionalTime(lastMessageAt)
	conv.CreatedAt = fromMicros(createdAt)
	return &conv, nil
}

func scanMessage(row scanner) (*store.Message, error) {
	var msg store.Message
	var contentType string
	var createdAt int64
	var updatedAt sql.NullInt64
	sender := &store.User{}
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Seq,
		&msg.SenderID,
		&sender.Name,
		&sender.Email,
		&msg.Content,
		&contentType,
		&msg.AttachmentURL,
		&msg.Edited,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	sender.ID = msg.SenderID
	msg.Sender = sender
	msg.ContentType = store.ContentType(contentType)
	msg.CreatedAt = fromMicros(createdAt)
	msg.UpdatedAt = optionalTime(updatedAt)
	return &msg, nil
}

func requireAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

// mapConstraint turns a foreign key violation (unknown user or conversation) into ErrNotFound.
func mapConstraint(err error) error {
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return fmt.Errorf("%v: %w", err, store.ErrNotFound)
	}
	return err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func optionalTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

var _ store.Store = (*SQLiteStore)(nil)
