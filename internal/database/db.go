package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// schema contains the tables owned by this service. EnsureSchema applies
// them at startup; every statement is idempotent so repeated boots are
// safe. The inventories.event_id UNIQUE key is what makes inventory
// creation idempotent under notification redelivery.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventories (
		id                CHAR(36)     NOT NULL,
		event_id          CHAR(36)     NOT NULL,
		total_tickets     INT          NOT NULL,
		available_tickets INT          NOT NULL,
		reserved_tickets  INT          NOT NULL DEFAULT 0,
		sold_tickets      INT          NOT NULL DEFAULT 0,
		cancelled_tickets INT          NOT NULL DEFAULT 0,
		base_price_cents  BIGINT       NOT NULL,
		currency          VARCHAR(8)   NOT NULL DEFAULT 'EUR',
		sale_starts_at    DATETIME     NOT NULL,
		sale_ends_at      DATETIME     NOT NULL,
		status            VARCHAR(16)  NOT NULL DEFAULT 'draft',
		created_at        DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at        DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_inventories_event (event_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id                  CHAR(36)    NOT NULL,
		event_id            CHAR(36)    NOT NULL,
		inventory_id        CHAR(36)    NOT NULL,
		user_id             CHAR(36)    NULL,
		status              VARCHAR(16) NOT NULL DEFAULT 'available',
		price_cents         BIGINT      NOT NULL,
		currency            VARCHAR(8)  NOT NULL DEFAULT 'EUR',
		purchase_date       DATETIME    NULL,
		qr_proof            MEDIUMTEXT  NULL,
		validation_code     VARCHAR(16) NULL,
		seat_row            INT         NOT NULL,
		seat_number         INT         NOT NULL,
		reserved_expires_at DATETIME    NULL,
		created_at          DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at          DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_tickets_event_status (event_id, status),
		KEY idx_tickets_user (user_id),
		CONSTRAINT fk_tickets_inventory FOREIGN KEY (inventory_id) REFERENCES inventories (id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                CHAR(36)    NOT NULL,
		ticket_id         CHAR(36)    NOT NULL,
		event_id          CHAR(36)    NOT NULL,
		user_id           CHAR(36)    NOT NULL,
		type              VARCHAR(16) NOT NULL,
		amount_cents      BIGINT      NOT NULL,
		currency          VARCHAR(8)  NOT NULL DEFAULT 'EUR',
		status            VARCHAR(16) NOT NULL DEFAULT 'pending',
		payment_method    VARCHAR(64) NULL,
		payment_reference VARCHAR(128) NULL,
		metadata          JSON        NULL,
		created_at        DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_transactions_ticket (ticket_id)
	) ENGINE=InnoDB`,
}

// EnsureSchema creates the service's tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
