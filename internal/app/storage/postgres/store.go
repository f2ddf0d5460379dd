package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/domain/group"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/domain/task"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/domain/version"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Cascading
// deletes (product → versions → features → sprints → tasks, plus ACL
// entries) are handled by ON DELETE CASCADE foreign keys in the schema.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.GroupStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.ACLStore = (*Store)(nil)
var _ storage.VersionStore = (*Store)(nil)
var _ storage.FeatureStore = (*Store)(nil)
var _ storage.SprintStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.ActivityStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return err
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, password_hash, admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Username, u.DisplayName, u.Email, u.PasswordHash, u.Admin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $2, display_name = $3, email = $4, password_hash = $5, admin = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.Username, u.DisplayName, u.Email, u.PasswordHash, u.Admin, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, username, display_name, email, password_hash, admin, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		return user.User{}, wrapNotFound(err, "user", id)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, username, display_name, email, password_hash, admin, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)
	if err != nil {
		return user.User{}, wrapNotFound(err, "user", username)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	var result []user.User
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, username, display_name, email, password_hash, admin, created_at, updated_at
		FROM users
		ORDER BY created_at
	`)
	return result, err
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}

// --- SessionStore ------------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, sess user.Session) (user.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = time.Now().UTC()
	if sess.LastSeen.IsZero() {
		sess.LastSeen = sess.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.LastSeen, sess.CreatedAt)
	if err != nil {
		return user.Session{}, err
	}
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (user.Session, error) {
	var sess user.Session
	err := s.db.GetContext(ctx, &sess, `
		SELECT id, user_id, token_hash, expires_at, last_seen, created_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return user.Session{}, wrapNotFound(err, "session", tokenHash)
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_seen = $2 WHERE id = $1
	`, id, lastSeen.UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("session: %w", storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at < $1
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- GroupStore --------------------------------------------------------------

func (s *Store) CreateGroup(ctx context.Context, g group.Group) (group.Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.MemberIDs = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, g.ID, g.Name, g.Description, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return group.Group{}, err
	}
	return g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g group.Group) (group.Group, error) {
	existing, err := s.GetGroup(ctx, g.ID)
	if err != nil {
		return group.Group{}, err
	}
	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE user_groups SET name = $2, description = $3, updated_at = $4 WHERE id = $1
	`, g.ID, g.Name, g.Description, g.UpdatedAt)
	if err != nil {
		return group.Group{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return group.Group{}, fmt.Errorf("group %s: %w", g.ID, storage.ErrNotFound)
	}
	g.MemberIDs = existing.MemberIDs
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (group.Group, error) {
	var g group.Group
	err := s.db.GetContext(ctx, &g, `
		SELECT id, name, description, created_at, updated_at
		FROM user_groups
		WHERE id = $1
	`, id)
	if err != nil {
		return group.Group{}, wrapNotFound(err, "group", id)
	}
	if err := s.db.SelectContext(ctx, &g.MemberIDs, `
		SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id
	`, id); err != nil {
		return group.Group{}, err
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]group.Group, error) {
	var groups []group.Group
	err := s.db.SelectContext(ctx, &groups, `
		SELECT id, name, description, created_at, updated_at
		FROM user_groups
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if err := s.db.SelectContext(ctx, &groups[i].MemberIDs, `
			SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id
		`, groups[i].ID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_groups WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	return err
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	return err
}

func (s *Store) ListGroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY group_id
	`, userID)
	return ids, err
}

// --- ProductStore ------------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Description, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return product.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return product.Product{}, err
	}
	p.OwnerID = existing.OwnerID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE products SET name = $2, description = $3, updated_at = $4 WHERE id = $1
	`, p.ID, p.Name, p.Description, p.UpdatedAt)
	if err != nil {
		return product.Product{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return product.Product{}, fmt.Errorf("product %s: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	err := s.db.GetContext(ctx, &p, `
		SELECT id, name, description, owner_id, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	if err != nil {
		return product.Product{}, wrapNotFound(err, "product", id)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]product.Product, error) {
	var result []product.Product
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, name, description, owner_id, created_at, updated_at
		FROM products
		ORDER BY created_at
	`)
	return result, err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- ACLStore ----------------------------------------------------------------

type aclRow struct {
	ID        string         `db:"id"`
	ProductID string         `db:"product_id"`
	UserID    sql.NullString `db:"user_id"`
	GroupID   sql.NullString `db:"group_id"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r aclRow) toDomain() product.ACLEntry {
	return product.ACLEntry{
		ID:        r.ID,
		ProductID: r.ProductID,
		UserID:    r.UserID.String,
		GroupID:   r.GroupID.String,
		CreatedAt: r.CreatedAt,
	}
}

func (s *Store) CreateACLEntry(ctx context.Context, e product.ACLEntry) (product.ACLEntry, error) {
	// Grants are idempotent: return the existing entry when present.
	var existing aclRow
	err := s.db.GetContext(ctx, &existing, `
		SELECT id, product_id, user_id, group_id, created_at
		FROM product_acl_entries
		WHERE product_id = $1
		  AND user_id IS NOT DISTINCT FROM $2
		  AND group_id IS NOT DISTINCT FROM $3
	`, e.ProductID, toNullString(e.UserID), toNullString(e.GroupID))
	if err == nil {
		return existing.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return product.ACLEntry{}, err
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO product_acl_entries (id, product_id, user_id, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.ProductID, toNullString(e.UserID), toNullString(e.GroupID), e.CreatedAt)
	if err != nil {
		return product.ACLEntry{}, err
	}
	return e, nil
}

func (s *Store) GetACLEntry(ctx context.Context, id string) (product.ACLEntry, error) {
	var row aclRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, product_id, user_id, group_id, created_at
		FROM product_acl_entries
		WHERE id = $1
	`, id)
	if err != nil {
		return product.ACLEntry{}, wrapNotFound(err, "acl entry", id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListACLEntries(ctx context.Context, productID string) ([]product.ACLEntry, error) {
	var rows []aclRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, product_id, user_id, group_id, created_at
		FROM product_acl_entries
		WHERE product_id = $1
		ORDER BY created_at
	`, productID)
	if err != nil {
		return nil, err
	}
	result := make([]product.ACLEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteACLEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM product_acl_entries WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("acl entry %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- VersionStore ------------------------------------------------------------

type versionRow struct {
	ID          string       `db:"id"`
	ProductID   string       `db:"product_id"`
	Name        string       `db:"name"`
	ReleaseDate sql.NullTime `db:"release_date"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

func (r versionRow) toDomain() version.Version {
	v := version.Version{
		ID:        r.ID,
		ProductID: r.ProductID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ReleaseDate.Valid {
		v.ReleaseDate = r.ReleaseDate.Time.UTC()
	}
	return v
}

func (s *Store) CreateVersion(ctx context.Context, v version.Version) (version.Version, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO versions (id, product_id, name, release_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, v.ID, v.ProductID, v.Name, toNullTime(v.ReleaseDate), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return version.Version{}, err
	}
	return v, nil
}

func (s *Store) UpdateVersion(ctx context.Context, v version.Version) (version.Version, error) {
	existing, err := s.GetVersion(ctx, v.ID)
	if err != nil {
		return version.Version{}, err
	}
	v.ProductID = existing.ProductID
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE versions SET name = $2, release_date = $3, updated_at = $4 WHERE id = $1
	`, v.ID, v.Name, toNullTime(v.ReleaseDate), v.UpdatedAt)
	if err != nil {
		return version.Version{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return version.Version{}, fmt.Errorf("version %s: %w", v.ID, storage.ErrNotFound)
	}
	return v, nil
}

func (s *Store) GetVersion(ctx context.Context, id string) (version.Version, error) {
	var row versionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, product_id, name, release_date, created_at, updated_at
		FROM versions
		WHERE id = $1
	`, id)
	if err != nil {
		return version.Version{}, wrapNotFound(err, "version", id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListVersions(ctx context.Context, productID string) ([]version.Version, error) {
	var rows []versionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, product_id, name, release_date, created_at, updated_at
		FROM versions
		WHERE product_id = $1
		ORDER BY created_at
	`, productID)
	if err != nil {
		return nil, err
	}
	result := make([]version.Version, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteVersion(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM versions WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("version %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- FeatureStore ------------------------------------------------------------

func (s *Store) CreateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO features (id, version_id, name, description, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.VersionID, f.Name, f.Description, f.Priority, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return feature.Feature{}, err
	}
	return f, nil
}

func (s *Store) UpdateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error) {
	existing, err := s.GetFeature(ctx, f.ID)
	if err != nil {
		return feature.Feature{}, err
	}
	f.VersionID = existing.VersionID
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE features SET name = $2, description = $3, priority = $4, updated_at = $5 WHERE id = $1
	`, f.ID, f.Name, f.Description, f.Priority, f.UpdatedAt)
	if err != nil {
		return feature.Feature{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return feature.Feature{}, fmt.Errorf("feature %s: %w", f.ID, storage.ErrNotFound)
	}
	return f, nil
}

func (s *Store) GetFeature(ctx context.Context, id string) (feature.Feature, error) {
	var f feature.Feature
	err := s.db.GetContext(ctx, &f, `
		SELECT id, version_id, name, description, priority, created_at, updated_at
		FROM features
		WHERE id = $1
	`, id)
	if err != nil {
		return feature.Feature{}, wrapNotFound(err, "feature", id)
	}
	return f, nil
}

func (s *Store) ListFeatures(ctx context.Context, versionID string) ([]feature.Feature, error) {
	var result []feature.Feature
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, version_id, name, description, priority, created_at, updated_at
		FROM features
		WHERE version_id = $1
		ORDER BY created_at
	`, versionID)
	return result, err
}

func (s *Store) DeleteFeature(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM features WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("feature %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- SprintStore -------------------------------------------------------------

type sprintRow struct {
	ID        string       `db:"id"`
	FeatureID string       `db:"feature_id"`
	Name      string       `db:"name"`
	StartDate sql.NullTime `db:"start_date"`
	EndDate   sql.NullTime `db:"end_date"`
	Status    string       `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

func (r sprintRow) toDomain() sprint.Sprint {
	sp := sprint.Sprint{
		ID:        r.ID,
		FeatureID: r.FeatureID,
		Name:      r.Name,
		Status:    sprint.Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.StartDate.Valid {
		sp.StartDate = r.StartDate.Time.UTC()
	}
	if r.EndDate.Valid {
		sp.EndDate = r.EndDate.Time.UTC()
	}
	return sp
}

func (s *Store) CreateSprint(ctx context.Context, sp sprint.Sprint) (sprint.Sprint, error) {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sp.CreatedAt = now
	sp.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sprints (id, feature_id, name, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sp.ID, sp.FeatureID, sp.Name, toNullTime(sp.StartDate), toNullTime(sp.EndDate), sp.Status, sp.CreatedAt, sp.UpdatedAt)
	if err != nil {
		return sprint.Sprint{}, err
	}
	return sp, nil
}

func (s *Store) UpdateSprint(ctx context.Context, sp sprint.Sprint) (sprint.Sprint, error) {
	existing, err := s.GetSprint(ctx, sp.ID)
	if err != nil {
		return sprint.Sprint{}, err
	}
	sp.FeatureID = existing.FeatureID
	sp.CreatedAt = existing.CreatedAt
	sp.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE sprints SET name = $2, start_date = $3, end_date = $4, status = $5, updated_at = $6 WHERE id = $1
	`, sp.ID, sp.Name, toNullTime(sp.StartDate), toNullTime(sp.EndDate), sp.Status, sp.UpdatedAt)
	if err != nil {
		return sprint.Sprint{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sprint.Sprint{}, fmt.Errorf("sprint %s: %w", sp.ID, storage.ErrNotFound)
	}
	return sp, nil
}

func (s *Store) GetSprint(ctx context.Context, id string) (sprint.Sprint, error) {
	var row sprintRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, feature_id, name, start_date, end_date, status, created_at, updated_at
		FROM sprints
		WHERE id = $1
	`, id)
	if err != nil {
		return sprint.Sprint{}, wrapNotFound(err, "sprint", id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListSprints(ctx context.Context, featureID string) ([]sprint.Sprint, error) {
	var rows []sprintRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, feature_id, name, start_date, end_date, status, created_at, updated_at
		FROM sprints
		WHERE feature_id = $1
		ORDER BY created_at
	`, featureID)
	if err != nil {
		return nil, err
	}
	result := make([]sprint.Sprint, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) ListSprintsByStatus(ctx context.Context, status sprint.Status) ([]sprint.Sprint, error) {
	var rows []sprintRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, feature_id, name, start_date, end_date, status, created_at, updated_at
		FROM sprints
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, err
	}
	result := make([]sprint.Sprint, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteSprint(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sprints WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("sprint %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- TaskStore ---------------------------------------------------------------

type taskRow struct {
	ID            string         `db:"id"`
	SprintID      string         `db:"sprint_id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	Status        string         `db:"status"`
	AssigneeID    sql.NullString `db:"assignee_id"`
	EstimateHours float64        `db:"estimate_hours"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r taskRow) toDomain() task.Task {
	return task.Task{
		ID:            r.ID,
		SprintID:      r.SprintID,
		Title:         r.Title,
		Description:   r.Description,
		Status:        task.Status(r.Status),
		AssigneeID:    r.AssigneeID.String,
		EstimateHours: r.EstimateHours,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, sprint_id, title, description, status, assignee_id, estimate_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.SprintID, t.Title, t.Description, t.Status, toNullString(t.AssigneeID), t.EstimateHours, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t task.Task) (task.Task, error) {
	existing, err := s.GetTask(ctx, t.ID)
	if err != nil {
		return task.Task{}, err
	}
	t.SprintID = existing.SprintID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, assignee_id = $5, estimate_hours = $6, updated_at = $7
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.Status, toNullString(t.AssigneeID), t.EstimateHours, t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return task.Task{}, fmt.Errorf("task %s: %w", t.ID, storage.ErrNotFound)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, sprint_id, title, description, status, assignee_id, estimate_hours, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`, id)
	if err != nil {
		return task.Task{}, wrapNotFound(err, "task", id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTasks(ctx context.Context, sprintID string) ([]task.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sprint_id, title, description, status, assignee_id, estimate_hours, created_at, updated_at
		FROM tasks
		WHERE sprint_id = $1
		ORDER BY created_at
	`, sprintID)
	if err != nil {
		return nil, err
	}
	result := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- ActivityStore -----------------------------------------------------------

type activityRow struct {
	ID         string         `db:"id"`
	ActorID    string         `db:"actor_id"`
	Action     string         `db:"action"`
	EntityKind string         `db:"entity_kind"`
	EntityID   string         `db:"entity_id"`
	ProductID  sql.NullString `db:"product_id"`
	Detail     string         `db:"detail"`
	Origin     string         `db:"origin"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r activityRow) toDomain() activity.Event {
	return activity.Event{
		ID:         r.ID,
		ActorID:    r.ActorID,
		Action:     r.Action,
		EntityKind: r.EntityKind,
		EntityID:   r.EntityID,
		ProductID:  r.ProductID.String,
		Detail:     r.Detail,
		Origin:     activity.Origin(r.Origin),
		CreatedAt:  r.CreatedAt,
	}
}

func (s *Store) CreateEvent(ctx context.Context, e activity.Event) (activity.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_events (id, actor_id, action, entity_kind, entity_id, product_id, detail, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.ActorID, e.Action, e.EntityKind, e.EntityID, toNullString(e.ProductID), e.Detail, e.Origin, e.CreatedAt)
	if err != nil {
		return activity.Event{}, err
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context, filter storage.ActivityFilter) ([]activity.Event, error) {
	query := `
		SELECT id, actor_id, action, entity_kind, entity_id, product_id, detail, origin, created_at
		FROM activity_events
	`
	var (
		args  []interface{}
		where []string
	)
	if filter.ProductIDs != nil {
		if len(filter.ProductIDs) == 0 {
			return nil, nil
		}
		placeholders := ""
		for i, id := range filter.ProductIDs {
			if i > 0 {
				placeholders += ", "
			}
			args = append(args, id)
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		where = append(where, fmt.Sprintf("product_id IN (%s)", placeholders))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []activityRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]activity.Event, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}
