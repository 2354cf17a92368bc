package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storecart/internal/db"
	"storecart/internal/domain"
	"storecart/internal/logger"
)

const cartColumns = `id::text, store_id::text, customer_id, session_token::text, status, currency, expires_at, last_activity_at, created_at, updated_at, deleted_at`

type postgresRepo struct {
	db     db.DBTX
	logger *zap.Logger
	now    func() time.Time
}

func NewPostgres(conn db.DBTX, log *zap.Logger) Repository {
	return &postgresRepo{
		db:     conn,
		logger: logger.OrNop(log).Named("cart_repo"),
		now:    time.Now,
	}
}

// queryer is satisfied by both the pool and a pgx.Tx.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *postgresRepo) GetByID(ctx context.Context, storeID, id string) (*domain.Cart, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFound("cart", id)
	}
	q := `SELECT ` + cartColumns + `
FROM carts
WHERE store_id = $1 AND id = $2 AND deleted_at IS NULL
`
	return fetchCart(ctx, r.db, q, storeID, id)
}

func (r *postgresRepo) GetActive(ctx context.Context, scope Scope) (*domain.Cart, error) {
	now := r.now().UTC()
	cartID, err := touchActive(ctx, r.db, scope, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("cart", scope.Owner.Key())
		}
		return nil, fmt.Errorf("touch active cart: %w", err)
	}
	return fetchCartByID(ctx, r.db, cartID)
}

func (r *postgresRepo) Locate(ctx context.Context, scope Scope) (*domain.Cart, MergeResult, error) {
	var (
		cart *domain.Cart
		res  MergeResult
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, scope.StoreID, scope.Owner); err != nil {
			return err
		}
		cartID, err := r.locateLocked(ctx, tx, scope, &res)
		if err != nil {
			return err
		}
		cart, err = fetchCartByID(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, MergeResult{}, err
	}
	return cart, res, nil
}

// AddLineItem merges quantity into the live line for the offering, or
// creates that line with the given price snapshot. Locate, merge and touch
// run in one transaction serialized per (store, owner).
func (r *postgresRepo) AddLineItem(ctx context.Context, in AddLineItemInput) (*domain.Cart, MergeResult, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return nil, MergeResult{}, err
	}
	var (
		cart *domain.Cart
		res  MergeResult
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, in.StoreID, in.Owner); err != nil {
			return err
		}
		cartID, err := r.locateLocked(ctx, tx, in.Scope, &res)
		if err != nil {
			return err
		}

		var lineID string
		err = tx.QueryRow(ctx, `
SELECT id::text
FROM cart_lines
WHERE cart_id = $1 AND offering_id = $2 AND deleted_at IS NULL
FOR UPDATE
`, cartID, in.OfferingID).Scan(&lineID)
		switch {
		case err == nil:
			tag, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = quantity + $2, updated_at = now()
WHERE id = $1 AND quantity <= $3::int - $2
`, lineID, in.Quantity, domain.MaxLineQuantity)
			if err != nil {
				return fmt.Errorf("increment line %s: %w", lineID, err)
			}
			if tag.RowsAffected() == 0 {
				return domain.InvalidArgument("line %s would exceed the maximum quantity of %d", lineID, domain.MaxLineQuantity)
			}
		case errors.Is(err, pgx.ErrNoRows):
			snapshot := in.Snapshot
			if snapshot == nil {
				snapshot = map[string]interface{}{}
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO cart_lines (cart_id, offering_id, quantity, unit_price, currency, snapshot)
VALUES ($1, $2, $3, $4::numeric, $5, $6)
`, cartID, in.OfferingID, in.Quantity, in.UnitPrice.StringFixed(2), in.Currency, snapshot); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
			res.LineCreated = true
		default:
			return fmt.Errorf("lock line: %w", err)
		}

		cart, err = fetchCartByID(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, MergeResult{}, err
	}
	return cart, res, nil
}

func (r *postgresRepo) ChangeLineItemQuantity(ctx context.Context, in ChangeLineItemInput) (*domain.Cart, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return nil, err
	}
	return r.mutateLine(ctx, in.Scope, in.LineItemID, `
UPDATE cart_lines
SET quantity = $3, updated_at = now()
WHERE id = $1 AND cart_id = $2 AND deleted_at IS NULL
`, in.Quantity)
}

func (r *postgresRepo) RemoveLineItem(ctx context.Context, scope Scope, lineItemID string) (*domain.Cart, error) {
	return r.mutateLine(ctx, scope, lineItemID, `
UPDATE cart_lines
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND cart_id = $2 AND deleted_at IS NULL
`)
}

func (r *postgresRepo) mutateLine(ctx context.Context, scope Scope, lineItemID, stmt string, extra ...any) (*domain.Cart, error) {
	if _, err := uuid.Parse(lineItemID); err != nil {
		return nil, domain.NotFound("line item", lineItemID)
	}
	var cart *domain.Cart
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, scope.StoreID, scope.Owner); err != nil {
			return err
		}
		cartID, err := touchActive(ctx, tx, scope, r.now().UTC())
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFound("cart", scope.Owner.Key())
			}
			return fmt.Errorf("touch active cart: %w", err)
		}
		args := append([]any{lineItemID, cartID}, extra...)
		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("update line %s: %w", lineItemID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFound("line item", lineItemID)
		}
		cart, err = fetchCartByID(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// SoftDelete abandons the owner's active cart and soft-deletes its lines.
func (r *postgresRepo) SoftDelete(ctx context.Context, scope Scope) error {
	col, arg, err := ownerFilter(scope.Owner)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, scope.StoreID, scope.Owner); err != nil {
			return err
		}
		var cartID string
		err := tx.QueryRow(ctx, fmt.Sprintf(`
UPDATE carts
SET status = 'abandoned', deleted_at = now(), updated_at = now()
WHERE store_id = $1 AND %s = $2 AND status = 'active' AND deleted_at IS NULL
RETURNING id::text
`, col), scope.StoreID, arg).Scan(&cartID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFound("cart", scope.Owner.Key())
			}
			return fmt.Errorf("abandon cart: %w", err)
		}
		if _, err := tx.Exec(ctx, `
UPDATE cart_lines
SET deleted_at = now(), updated_at = now()
WHERE cart_id = $1 AND deleted_at IS NULL
`, cartID); err != nil {
			return fmt.Errorf("delete lines of cart %s: %w", cartID, err)
		}
		r.logger.Info("cart deleted", zap.String("cart_id", cartID), zap.String("owner", scope.Owner.Key()))
		return nil
	})
}

// Claim hands an anonymous cart to a customer. Without an active customer
// cart the session cart is re-owned; otherwise its lines are merged into the
// customer's cart and the session cart is abandoned.
func (r *postgresRepo) Claim(ctx context.Context, in ClaimInput) (*domain.Cart, ClaimResult, error) {
	session := domain.SessionOwner(in.SessionToken)
	customer := domain.CustomerOwner(in.CustomerID)
	now := r.now().UTC()

	var (
		cart *domain.Cart
		res  ClaimResult
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwners(ctx, tx, in.StoreID, session, customer); err != nil {
			return err
		}

		var sourceID string
		err := tx.QueryRow(ctx, `
SELECT id::text
FROM carts
WHERE store_id = $1 AND session_token = $2 AND status = 'active' AND deleted_at IS NULL
  AND (expires_at IS NULL OR expires_at > $3)
FOR UPDATE
`, in.StoreID, in.SessionToken.String(), now).Scan(&sourceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFound("cart", session.Key())
			}
			return fmt.Errorf("lock session cart: %w", err)
		}
		res.SourceID = sourceID

		targetID, err := touchActive(ctx, tx, Scope{StoreID: in.StoreID, Owner: customer}, now)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if _, err := tx.Exec(ctx, `
UPDATE carts
SET customer_id = $2, session_token = NULL, expires_at = NULL, last_activity_at = $3, updated_at = $3
WHERE id = $1
`, sourceID, in.CustomerID, now); err != nil {
				return fmt.Errorf("re-own cart %s: %w", sourceID, err)
			}
			cart, err = fetchCartByID(ctx, tx, sourceID)
			return err
		case err != nil:
			return fmt.Errorf("touch customer cart: %w", err)
		}

		res.Merged = true
		tag, err := tx.Exec(ctx, `
UPDATE cart_lines dst
SET quantity = dst.quantity + src.quantity, updated_at = now()
FROM cart_lines src
WHERE src.cart_id = $1 AND src.deleted_at IS NULL
  AND dst.cart_id = $2 AND dst.deleted_at IS NULL
  AND dst.offering_id = src.offering_id
`, sourceID, targetID)
		if err != nil {
			return fmt.Errorf("merge lines: %w", err)
		}
		res.MergedLines = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
UPDATE cart_lines src
SET cart_id = $2, updated_at = now()
WHERE src.cart_id = $1 AND src.deleted_at IS NULL
  AND NOT EXISTS (
    SELECT 1 FROM cart_lines dst
    WHERE dst.cart_id = $2 AND dst.deleted_at IS NULL AND dst.offering_id = src.offering_id
  )
`, sourceID, targetID)
		if err != nil {
			return fmt.Errorf("move lines: %w", err)
		}
		res.MovedLines = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `
UPDATE cart_lines
SET deleted_at = now(), updated_at = now()
WHERE cart_id = $1 AND deleted_at IS NULL
`, sourceID); err != nil {
			return fmt.Errorf("retire merged lines: %w", err)
		}
		if _, err := tx.Exec(ctx, `
UPDATE carts
SET status = 'abandoned', updated_at = now()
WHERE id = $1
`, sourceID); err != nil {
			return fmt.Errorf("abandon session cart: %w", err)
		}

		cart, err = fetchCartByID(ctx, tx, targetID)
		return err
	})
	if err != nil {
		return nil, ClaimResult{}, err
	}
	return cart, res, nil
}

// ExpireStale marks active carts whose expiry has passed as expired.
func (r *postgresRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE carts
SET status = 'expired', updated_at = now()
WHERE status = 'active' AND deleted_at IS NULL
  AND expires_at IS NOT NULL AND expires_at <= $1
`, now)
	if err != nil {
		return 0, fmt.Errorf("expire carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// locateLocked returns the id of the owner's active cart, creating it when
// absent. The caller must hold the owner lock.
func (r *postgresRepo) locateLocked(ctx context.Context, tx pgx.Tx, scope Scope, res *MergeResult) (string, error) {
	col, arg, err := ownerFilter(scope.Owner)
	if err != nil {
		return "", err
	}
	now := r.now().UTC()

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
UPDATE carts
SET status = 'expired', updated_at = now()
WHERE store_id = $1 AND %s = $2 AND status = 'active' AND deleted_at IS NULL
  AND expires_at IS NOT NULL AND expires_at <= $3
`, col), scope.StoreID, arg, now)
	if err != nil {
		return "", fmt.Errorf("expire stale cart: %w", err)
	}
	if tag.RowsAffected() > 0 {
		r.logger.Info("expired stale cart", zap.String("owner", scope.Owner.Key()), zap.String("store_id", scope.StoreID))
	}

	cartID, err := touchActive(ctx, tx, scope, now)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("touch active cart: %w", err)
	}

	var customerID, sessionToken *string
	if id, ok := scope.Owner.CustomerID(); ok {
		customerID = &id
	}
	if tok, ok := scope.Owner.SessionToken(); ok {
		s := tok.String()
		sessionToken = &s
	}
	err = tx.QueryRow(ctx, fmt.Sprintf(`
INSERT INTO carts (store_id, customer_id, session_token, status, currency, expires_at, last_activity_at, created_at, updated_at)
VALUES ($1, $2, $3, 'active', $4, $5, $6, $6, $6)
ON CONFLICT (store_id, %[1]s) WHERE status = 'active' AND deleted_at IS NULL AND %[1]s IS NOT NULL DO NOTHING
RETURNING id::text
`, col), scope.StoreID, customerID, sessionToken, scope.Currency, expiry(scope, now), now).Scan(&cartID)
	if err == nil {
		res.CartCreated = true
		r.logger.Info("cart created", zap.String("cart_id", cartID), zap.String("owner", scope.Owner.Key()), zap.String("store_id", scope.StoreID))
		return cartID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("insert cart: %w", err)
	}

	// Another writer created the cart between our lookup and insert.
	res.CreateRaced = true
	r.logger.Warn("cart create raced, retrying as lookup", zap.String("owner", scope.Owner.Key()), zap.String("store_id", scope.StoreID))
	cartID, err = touchActive(ctx, tx, scope, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: active cart vanished after create conflict", domain.ErrConflict)
		}
		return "", fmt.Errorf("touch active cart after conflict: %w", err)
	}
	return cartID, nil
}

func (r *postgresRepo) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// touchActive bumps activity on the owner's live active cart and returns its
// id, or pgx.ErrNoRows when there is none.
func touchActive(ctx context.Context, q queryer, scope Scope, now time.Time) (string, error) {
	col, arg, err := ownerFilter(scope.Owner)
	if err != nil {
		return "", err
	}
	var id string
	err = q.QueryRow(ctx, fmt.Sprintf(`
UPDATE carts
SET last_activity_at = $3, updated_at = $3, expires_at = COALESCE($4, expires_at)
WHERE store_id = $1 AND %s = $2 AND status = 'active' AND deleted_at IS NULL
  AND (expires_at IS NULL OR expires_at > $3)
RETURNING id::text
`, col), scope.StoreID, arg, now, expiry(scope, now)).Scan(&id)
	return id, err
}

func checkQuantity(qty int) error {
	if qty < 1 || qty > domain.MaxLineQuantity {
		return domain.InvalidArgument("quantity must be between 1 and %d, got %d", domain.MaxLineQuantity, qty)
	}
	return nil
}

func expiry(scope Scope, now time.Time) *time.Time {
	if scope.Owner.Kind() != domain.OwnerSession || scope.SessionTTL <= 0 {
		return nil
	}
	t := now.Add(scope.SessionTTL)
	return &t
}

func ownerFilter(owner domain.Owner) (string, any, error) {
	if id, ok := owner.CustomerID(); ok {
		return "customer_id", id, nil
	}
	if tok, ok := owner.SessionToken(); ok {
		return "session_token", tok.String(), nil
	}
	return "", nil, domain.ErrNoActor
}

func lockKey(storeID string, owner domain.Owner) string {
	return storeID + ":" + owner.Key()
}

func lockOwner(ctx context.Context, tx pgx.Tx, storeID string, owner domain.Owner) error {
	if owner.IsZero() {
		return domain.ErrNoActor
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(storeID, owner)); err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

// lockOwners takes several owner locks in a stable order.
func lockOwners(ctx context.Context, tx pgx.Tx, storeID string, owners ...domain.Owner) error {
	sorted := append([]domain.Owner(nil), owners...)
	sort.Slice(sorted, func(i, j int) bool {
		return lockKey(storeID, sorted[i]) < lockKey(storeID, sorted[j])
	})
	for _, o := range sorted {
		if err := lockOwner(ctx, tx, storeID, o); err != nil {
			return err
		}
	}
	return nil
}

func fetchCartByID(ctx context.Context, q queryer, id string) (*domain.Cart, error) {
	return fetchCart(ctx, q, `SELECT `+cartColumns+`
FROM carts
WHERE id = $1
`, id)
}

func fetchCart(ctx context.Context, q queryer, cartQuery string, args ...any) (*domain.Cart, error) {
	var (
		cart         domain.Cart
		customerID   *string
		sessionToken *string
		status       string
	)
	err := q.QueryRow(ctx, cartQuery, args...).Scan(
		&cart.ID,
		&cart.StoreID,
		&customerID,
		&sessionToken,
		&status,
		&cart.Currency,
		&cart.ExpiresAt,
		&cart.LastActivityAt,
		&cart.CreatedAt,
		&cart.UpdatedAt,
		&cart.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	cart.Status = domain.CartStatus(status)

	switch {
	case customerID != nil:
		cart.Owner = domain.CustomerOwner(*customerID)
	case sessionToken != nil:
		tok, err := uuid.Parse(*sessionToken)
		if err != nil {
			return nil, fmt.Errorf("cart %s has malformed session token: %w", cart.ID, err)
		}
		cart.Owner = domain.SessionOwner(tok)
	}

	const linesQuery = `
SELECT id::text, cart_id::text, offering_id::text, quantity, unit_price::text, currency, snapshot, created_at, updated_at, deleted_at
FROM cart_lines
WHERE cart_id = $1 AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
`
	rows, err := q.Query(ctx, linesQuery, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line  domain.LineItem
			price string
		)
		if err := rows.Scan(
			&line.ID,
			&line.CartID,
			&line.OfferingID,
			&line.Quantity,
			&price,
			&line.Currency,
			&line.Snapshot,
			&line.CreatedAt,
			&line.UpdatedAt,
			&line.DeletedAt,
		); err != nil {
			return nil, err
		}
		if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse line %s price %q: %w", line.ID, price, err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &cart, nil
}
