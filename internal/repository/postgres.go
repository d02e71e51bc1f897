// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/sivanpabraj/studio-m/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCodeExists возвращается при вставке брони с уже занятым кодом.
var (
	ErrCodeExists = errors.New("reservation code already exists")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrReservationNotFound возвращается, если бронь не найдена.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrDraftNotFound возвращается, если черновик отсутствует.
	ErrDraftNotFound = errors.New("draft not found")
	// ErrAdminExists возвращается при повторном добавлении администратора.
	ErrAdminExists = errors.New("admin already exists")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий и прогоняет миграции схемы.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withReadRetry повторяет идемпотентные чтения при временных сбоях.
// Записи через него не ходят: молчаливый ретрай вставки брони может
// породить дубль.
func (r *PostgresRepository) withReadRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		retryable := false
		if errors.As(err, &pgErr) {
			retryable = pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
		}
		if !retryable {
			retryable = isConnectionError(err)
		}

		if retryable && i < len(delays) {
			time.Sleep(delays[i])
			continue
		}
		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CustomerByActor возвращает последнего по времени клиента для актора.
func (r *PostgresRepository) CustomerByActor(ctx context.Context, actorID int64) (*model.Customer, error) {
	var c model.Customer
	err := r.withReadRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT id, actor_id, display_name, phone, COALESCE(email, ''), created_at
			 FROM customers
			 WHERE actor_id = $1
			 ORDER BY created_at DESC
			 LIMIT 1`,
			actorID,
		)
		return row.Scan(&c.ID, &c.ActorID, &c.DisplayName, &c.Phone, &c.Email, &c.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// CreateReservation сохраняет бронь одной транзакцией: клиент создаётся,
// если его ещё нет, затем вставляется бронь. Занятый код брони приводит
// к ErrCodeExists, и ни клиент, ни бронь при этом не остаются в базе.
func (r *PostgresRepository) CreateReservation(ctx context.Context, cust model.Customer, res *model.Reservation) (int64, error) {
	specJSON, err := json.Marshal(res.Spec)
	if err != nil {
		return 0, fmt.Errorf("marshal spec: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM customers WHERE actor_id = $1 ORDER BY created_at DESC LIMIT 1`,
		res.ActorID,
	).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx,
			`INSERT INTO customers (actor_id, display_name, phone, email)
			 VALUES ($1, $2, $3, NULLIF($4, ''))
			 RETURNING id`,
			res.ActorID, cust.DisplayName, cust.Phone, cust.Email,
		).Scan(&customerID)
	}
	if err != nil {
		return 0, fmt.Errorf("ensure customer: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO reservations (
			customer_id, actor_id, code, service_type, spec,
			event_date, event_time, delivery_date, location,
			total_cost, deposit_amount, payment_status, booking_status
		 ) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)
		 RETURNING id`,
		customerID, res.ActorID, res.Code, string(res.ServiceType), specJSON,
		res.EventDate, res.EventTime, res.DeliveryDate, res.Location,
		res.TotalCost, res.DepositAmount, string(model.PaymentPending), string(model.BookingPending),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCodeExists, res.Code)
		}
		return 0, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	res.ID = id
	res.CustomerID = &customerID
	return id, nil
}

const reservationColumns = `
	r.id, r.customer_id, r.actor_id, r.code, r.service_type, r.spec,
	COALESCE(r.event_date, ''), COALESCE(r.event_time, ''), COALESCE(r.delivery_date, ''),
	COALESCE(r.location, ''), r.total_cost, r.deposit_amount,
	r.payment_status, r.booking_status,
	COALESCE(r.payment_method, ''), COALESCE(r.transaction_id, ''),
	r.created_at, r.updated_at`

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var (
		res         model.Reservation
		serviceType string
		specJSON    []byte
		payStatus   string
		bookStatus  string
	)
	err := row.Scan(
		&res.ID, &res.CustomerID, &res.ActorID, &res.Code, &serviceType, &specJSON,
		&res.EventDate, &res.EventTime, &res.DeliveryDate,
		&res.Location, &res.TotalCost, &res.DepositAmount,
		&payStatus, &bookStatus,
		&res.PaymentMethod, &res.TransactionID,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	res.ServiceType = model.ServiceType(serviceType)
	res.PaymentStatus = model.PaymentStatus(payStatus)
	res.BookingStatus = model.BookingStatus(bookStatus)
	if err := json.Unmarshal(specJSON, &res.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	return &res, nil
}

// ReservationByCode возвращает бронь по её коду.
func (r *PostgresRepository) ReservationByCode(ctx context.Context, code string) (*model.Reservation, error) {
	var res *model.Reservation
	err := r.withReadRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+reservationColumns+` FROM reservations r WHERE r.code = $1`,
			code,
		)
		var scanErr error
		res, scanErr = scanReservation(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) queryReservations(ctx context.Context, sql string, args ...any) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()

	var result []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// ReservationsByActor возвращает последние брони актора.
func (r *PostgresRepository) ReservationsByActor(ctx context.Context, actorID int64, limit int) ([]model.Reservation, error) {
	return r.queryReservations(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations r
		 WHERE r.actor_id = $1
		 ORDER BY r.created_at DESC
		 LIMIT $2`,
		actorID, limit,
	)
}

// SearchReservations ищет брони по коду, имени клиента или телефону.
func (r *PostgresRepository) SearchReservations(ctx context.Context, query string) ([]model.Reservation, error) {
	pattern := "%" + query + "%"
	return r.queryReservations(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations r
		 LEFT JOIN customers c ON r.customer_id = c.id
		 WHERE r.code ILIKE $1 OR c.display_name ILIKE $1 OR c.phone ILIKE $1
		 ORDER BY r.created_at DESC
		 LIMIT 50`,
		pattern,
	)
}

// UpdateReservationStatus меняет статус брони и/или оплаты по коду.
func (r *PostgresRepository) UpdateReservationStatus(ctx context.Context, code string, booking model.BookingStatus, payment model.PaymentStatus) error {
	updates := []string{"updated_at = now()"}
	params := []any{code}

	if booking != "" {
		params = append(params, string(booking))
		updates = append(updates, fmt.Sprintf("booking_status = $%d", len(params)))
	}
	if payment != "" {
		params = append(params, string(payment))
		updates = append(updates, fmt.Sprintf("payment_status = $%d", len(params)))
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations SET `+strings.Join(updates, ", ")+` WHERE code = $1`,
		params...,
	)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// UpdatePaymentInfo фиксирует способ оплаты и ссылку платёжной системы.
func (r *PostgresRepository) UpdatePaymentInfo(ctx context.Context, code string, status model.PaymentStatus, method, transactionID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations
		 SET payment_status = $2,
		     payment_method = NULLIF($3, ''),
		     transaction_id = NULLIF($4, ''),
		     updated_at = now()
		 WHERE code = $1`,
		code, string(status), method, transactionID,
	)
	if err != nil {
		return fmt.Errorf("update payment info: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// SaveDraft перезаписывает черновик сессии актора.
func (r *PostgresRepository) SaveDraft(ctx context.Context, actorID int64, fields []byte, state string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO drafts (actor_id, fields, state, saved_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (actor_id) DO UPDATE
		 SET fields = EXCLUDED.fields, state = EXCLUDED.state, saved_at = now()`,
		actorID, fields, state,
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft возвращает черновик актора.
func (r *PostgresRepository) LoadDraft(ctx context.Context, actorID int64) (*model.Draft, error) {
	var d model.Draft
	err := r.withReadRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT actor_id, fields, state, saved_at FROM drafts WHERE actor_id = $1`,
			actorID,
		)
		return row.Scan(&d.ActorID, &d.Fields, &d.State, &d.SavedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return &d, nil
}

// DeleteDraft удаляет черновик актора.
func (r *PostgresRepository) DeleteDraft(ctx context.Context, actorID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM drafts WHERE actor_id = $1`, actorID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// DeleteExpiredDrafts удаляет черновики старше maxAge и возвращает их число.
func (r *PostgresRepository) DeleteExpiredDrafts(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM drafts WHERE saved_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(maxAge.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired drafts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// IsAdmin сообщает, есть ли у актора права администратора.
func (r *PostgresRepository) IsAdmin(ctx context.Context, actorID int64) (bool, error) {
	var exists bool
	err := r.withReadRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM admins WHERE actor_id = $1)`,
			actorID,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return exists, nil
}

// AddAdmin добавляет администратора.
func (r *PostgresRepository) AddAdmin(ctx context.Context, a model.Admin) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admins (actor_id, username, full_name, added_by)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)`,
		a.ActorID, a.Username, a.FullName, a.AddedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %d", ErrAdminExists, a.ActorID)
		}
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

// LogAction записывает действие актора в журнал аудита.
func (r *PostgresRepository) LogAction(ctx context.Context, actorID int64, action, details string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (actor_id, action, details) VALUES ($1, $2, NULLIF($3, ''))`,
		actorID, action, details,
	)
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// Stats собирает сводную статистику студии.
func (r *PostgresRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats
	err := r.withReadRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx, `
			SELECT
				(SELECT COUNT(*) FROM customers),
				(SELECT COUNT(*) FROM reservations),
				(SELECT COUNT(*) FROM reservations WHERE booking_status = 'pending'),
				(SELECT COUNT(*) FROM reservations WHERE booking_status = 'confirmed'),
				(SELECT COALESCE(SUM(total_cost), 0) FROM reservations WHERE payment_status = 'paid'),
				(SELECT COALESCE(SUM(total_cost), 0) FROM reservations
				 WHERE payment_status = 'paid' AND created_at >= date_trunc('month', now()))
		`)
		return row.Scan(
			&s.TotalCustomers, &s.TotalReservations,
			&s.PendingReservations, &s.ConfirmedReservations,
			&s.TotalRevenue, &s.MonthlyRevenue,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}
	return &s, nil
}
