package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"wishlist_backend/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	activeReservationIndex = "ix_reservations_item_id_active"
	uniqueViolation        = "23505"
)

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func ConnectDB(driver, dataSourceName string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// RunMigrations applies the embedded migrations. It is a no-op when the
// schema is already current.
func RunMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertWishlist(ctx context.Context, w *models.Wishlist) error {
	query := `
        INSERT INTO wishlists (id, owner_id, title, description, event_date, is_public, share_token, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.DB.ExecContext(ctx, query,
		w.ID, w.OwnerID, w.Title, w.Description, w.EventDate, w.IsPublic, w.ShareToken, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert wishlist: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertItem(ctx context.Context, item *models.WishItem) error {
	query := `
        INSERT INTO wish_items (` + itemColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.DB.ExecContext(ctx, query,
		item.ID, item.WishlistID, item.Title, item.Description, item.ProductURL, item.ImageURL,
		item.TargetPrice.Text('f'), item.AllowGroupContribution, item.IsDeleted, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert wish item: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

const itemColumns = `id, wishlist_id, title, description, product_url, image_url,
        target_price, allow_group_contribution, is_deleted, created_at`

func scanItem(row interface{ Scan(...any) error }) (*models.WishItem, error) {
	item := &models.WishItem{}
	var target string
	err := row.Scan(
		&item.ID,
		&item.WishlistID,
		&item.Title,
		&item.Description,
		&item.ProductURL,
		&item.ImageURL,
		&target,
		&item.AllowGroupContribution,
		&item.IsDeleted,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	price, err := parseNumeric(target)
	if err != nil {
		return nil, err
	}
	item.TargetPrice.Set(price)
	return item, nil
}

func (t *pgTx) GetItem(ctx context.Context, itemID uuid.UUID, forUpdate bool) (*models.WishItem, error) {
	query := `
        SELECT ` + itemColumns + `
        FROM wish_items
        WHERE id = $1 AND is_deleted = FALSE`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	item, err := scanItem(t.tx.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

const reservationColumns = `id, item_id, anonymous_session_id, created_at, cancelled_at`

func scanReservation(row *sql.Row) (*models.Reservation, error) {
	r := &models.Reservation{}
	err := row.Scan(&r.ID, &r.ItemID, &r.SessionID, &r.CreatedAt, &r.CancelledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (t *pgTx) GetActiveReservation(ctx context.Context, itemID uuid.UUID) (*models.Reservation, error) {
	query := `
        SELECT ` + reservationColumns + `
        FROM reservations
        WHERE item_id = $1 AND cancelled_at IS NULL`

	r, err := scanReservation(t.tx.QueryRowContext(ctx, query, itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to get active reservation: %w", err)
	}
	return r, nil
}

func (t *pgTx) GetOpenReservationForSession(ctx context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error) {
	query := `
        SELECT ` + reservationColumns + `
        FROM reservations
        WHERE item_id = $1 AND anonymous_session_id = $2 AND cancelled_at IS NULL
        ORDER BY created_at DESC
        LIMIT 1`

	r, err := scanReservation(t.tx.QueryRowContext(ctx, query, itemID, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation for session: %w", err)
	}
	return r, nil
}

func (t *pgTx) CreateReservation(ctx context.Context, itemID uuid.UUID, sessionID string) (*models.Reservation, error) {
	query := `
        INSERT INTO reservations (id, item_id, anonymous_session_id, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING created_at`

	r := &models.Reservation{
		ID:        uuid.New(),
		ItemID:    itemID,
		SessionID: sessionID,
	}
	err := t.tx.QueryRowContext(ctx, query, r.ID, r.ItemID, r.SessionID).Scan(&r.CreatedAt)
	if err != nil {
		if isActiveReservationViolation(err) {
			return nil, ErrDBReservationTaken
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return r, nil
}

func isActiveReservationViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && pqErr.Constraint == activeReservationIndex
}

func (t *pgTx) CancelReservation(ctx context.Context, reservationID uuid.UUID, sessionID string) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
        UPDATE reservations
        SET cancelled_at = NOW()
        WHERE id = $1 AND anonymous_session_id = $2 AND cancelled_at IS NULL`,
		reservationID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (t *pgTx) ActiveReservationItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	active := make(map[uuid.UUID]bool)
	if len(itemIDs) == 0 {
		return active, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
        SELECT DISTINCT item_id
        FROM reservations
        WHERE item_id = ANY($1::uuid[]) AND cancelled_at IS NULL`,
		pq.Array(uuidStrings(itemIDs)))
	if err != nil {
		return nil, fmt.Errorf("failed to query active reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reserved item id: %w", err)
		}
		active[id] = true
	}
	return active, rows.Err()
}

func (t *pgTx) CreateContribution(ctx context.Context, itemID uuid.UUID, sessionID string, amount *apd.Decimal) (*models.Contribution, error) {
	query := `
        INSERT INTO contributions (id, item_id, anonymous_session_id, amount, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING amount, created_at`

	c := &models.Contribution{
		ID:        uuid.New(),
		ItemID:    itemID,
		SessionID: sessionID,
	}
	var stored string
	err := t.tx.QueryRowContext(ctx, query, c.ID, c.ItemID, c.SessionID, amount.Text('f')).
		Scan(&stored, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create contribution: %w", err)
	}
	d, err := parseNumeric(stored)
	if err != nil {
		return nil, err
	}
	c.Amount.Set(d)
	return c, nil
}

func (t *pgTx) SumContributions(ctx context.Context, itemID uuid.UUID) (*apd.Decimal, error) {
	var raw string
	err := t.tx.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(amount), 0)::text
        FROM contributions
        WHERE item_id = $1`, itemID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to sum contributions: %w", err)
	}
	return parseNumeric(raw)
}

func (t *pgTx) SumContributionsByItems(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]*apd.Decimal, error) {
	sums := make(map[uuid.UUID]*apd.Decimal, len(itemIDs))
	if len(itemIDs) == 0 {
		return sums, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
        SELECT item_id, SUM(amount)::text
        FROM contributions
        WHERE item_id = ANY($1::uuid[])
        GROUP BY item_id`,
		pq.Array(uuidStrings(itemIDs)))
	if err != nil {
		return nil, fmt.Errorf("failed to query contribution sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  uuid.UUID
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan contribution sum: %w", err)
		}
		d, err := parseNumeric(raw)
		if err != nil {
			return nil, err
		}
		sums[id] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contribution sums: %w", err)
	}

	for _, id := range itemIDs {
		if _, ok := sums[id]; !ok {
			sums[id] = apd.New(0, 0)
		}
	}
	return sums, nil
}

func (t *pgTx) GetWishlistByShareToken(ctx context.Context, token uuid.UUID) (*models.Wishlist, error) {
	query := `
        SELECT id, owner_id, title, description, event_date, is_public, share_token, created_at
        FROM wishlists
        WHERE share_token = $1`

	w := &models.Wishlist{}
	err := t.tx.QueryRowContext(ctx, query, token).Scan(
		&w.ID,
		&w.OwnerID,
		&w.Title,
		&w.Description,
		&w.EventDate,
		&w.IsPublic,
		&w.ShareToken,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wishlist by share token: %w", err)
	}
	return w, nil
}

func (t *pgTx) ListVisibleItems(ctx context.Context, wishlistID uuid.UUID) ([]*models.WishItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
        SELECT `+itemColumns+`
        FROM wish_items
        WHERE wishlist_id = $1 AND is_deleted = FALSE
        ORDER BY created_at ASC, id ASC`, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wish items: %w", err)
	}
	defer rows.Close()

	var items []*models.WishItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wish item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func parseNumeric(raw string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse numeric %q: %w", raw, err)
	}
	return d, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
