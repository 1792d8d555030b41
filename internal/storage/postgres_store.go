package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/models"
)

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                    BIGSERIAL PRIMARY KEY,
	customer_name         TEXT NOT NULL,
	customer_wallet       TEXT NOT NULL,
	delivery_agent_wallet TEXT NOT NULL,
	customer_rfid         TEXT NOT NULL DEFAULT '',
	delivery_agent_rfid   TEXT NOT NULL DEFAULT '',
	order_delivered       BOOLEAN NOT NULL DEFAULT FALSE,
	fund_released         BOOLEAN NOT NULL DEFAULT FALSE,
	delivery_fees         DOUBLE PRECISION NOT NULL CHECK (delivery_fees >= 0),
	content               TEXT NOT NULL DEFAULT '',
	description           TEXT NOT NULL DEFAULT '',
	delivery_address      TEXT NOT NULL DEFAULT '',
	delivery_latitude     DOUBLE PRECISION NOT NULL,
	delivery_longitude    DOUBLE PRECISION NOT NULL,
	metadata              TEXT NOT NULL DEFAULT '',
	cid                   TEXT NOT NULL DEFAULT '',
	escrow_ref            TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (NOT fund_released OR order_delivered)
);
CREATE INDEX IF NOT EXISTS orders_customer_wallet_idx ON orders (customer_wallet);
CREATE INDEX IF NOT EXISTS orders_agent_wallet_idx ON orders (delivery_agent_wallet);
`

const orderColumns = `id, customer_name, customer_wallet, delivery_agent_wallet, customer_rfid, delivery_agent_rfid,
	order_delivered, fund_released, delivery_fees, content, description, delivery_address,
	delivery_latitude, delivery_longitude, metadata, cid, escrow_ref, created_at`

// PostgresStore is an off-chain ledger.Client backed by a single orders table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

func (p *PostgresStore) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (models.Order, error) {
	var o models.Order
	var id int64
	var created time.Time
	err := s.Scan(&id, &o.CustomerName, &o.CustomerWallet, &o.DeliveryAgentWallet, &o.CustomerRFID, &o.DeliveryAgentRFID,
		&o.OrderDelivered, &o.FundReleased, &o.DeliveryFees, &o.Content, &o.Description, &o.DeliveryAddress,
		&o.DeliveryLatitude, &o.DeliveryLongitude, &o.Metadata, &o.CID, &o.EscrowRef, &created)
	o.ID = uint64(id)
	o.CreatedAt = created
	return o, err
}

func (p *PostgresStore) GetOrder(ctx context.Context, id uint64) (models.Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("%w: %d", ledger.ErrOrderNotFound, id)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("%w: get order %d: %v", ledger.ErrLedgerCallFailed, id, err)
	}
	return o, nil
}

func (p *PostgresStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", ledger.ErrLedgerCallFailed, err)
	}
	defer rows.Close()
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan order: %v", ledger.ErrLedgerCallFailed, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", ledger.ErrLedgerCallFailed, err)
	}
	return out, nil
}

func (p *PostgresStore) CreateOrder(ctx context.Context, in models.NewOrder) (uint64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `INSERT INTO orders(customer_name, customer_wallet, delivery_agent_wallet, customer_rfid, delivery_agent_rfid,
		delivery_fees, content, description, delivery_address, delivery_latitude, delivery_longitude, metadata, cid, escrow_ref)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		in.CustomerName, in.CustomerWallet, in.DeliveryAgentWallet, in.CustomerRFID, in.DeliveryAgentRFID,
		in.DeliveryFees, in.Content, in.Description, in.DeliveryAddress, in.DeliveryLatitude, in.DeliveryLongitude,
		in.Metadata, in.CID, in.EscrowRef).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: create order: %v", ledger.ErrLedgerCallFailed, err)
	}
	return uint64(id), nil
}

func (p *PostgresStore) MarkDelivered(ctx context.Context, id uint64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET order_delivered = TRUE WHERE id = $1 AND NOT order_delivered`, int64(id))
	return p.checkTransition(ctx, id, res, err, "mark delivered")
}

func (p *PostgresStore) ReleaseFunds(ctx context.Context, id uint64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET fund_released = TRUE WHERE id = $1 AND order_delivered AND NOT fund_released`, int64(id))
	return p.checkTransition(ctx, id, res, err, "release funds")
}

// checkTransition tells a missing order apart from a rejected transition
// when the guarded UPDATE touched no row.
func (p *PostgresStore) checkTransition(ctx context.Context, id uint64, res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%w: %s %d: %v", ledger.ErrLedgerCallFailed, op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s %d: %v", ledger.ErrLedgerCallFailed, op, id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := p.GetOrder(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s on order %d", ledger.ErrInvalidTransition, op, id)
}
