package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/guidedesk/guidedesk/internal/api"
)

// MySQLConfig locates the database.
type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DSN returns the connection string for the configured database.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + c.Port
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Collation = "utf8mb4_unicode_ci"
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

func (c MySQLConfig) adminDSN() string {
	c.DBName = ""
	return c.DSN()
}

// MySQL server error numbers.
const (
	mysqlErrDuplicate  = 1062
	mysqlErrForeignKey = 1452
)

const settingSyncEnabled = "bokun_sync_enabled"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'guide',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS guides (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(64) NOT NULL,
		email VARCHAR(255) NULL,
		languages TEXT NULL,
		bio TEXT NULL,
		photo_url VARCHAR(512) NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tours (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		duration VARCHAR(64) NOT NULL DEFAULT '',
		description TEXT NULL,
		tour_date DATE NOT NULL,
		tour_time VARCHAR(8) NOT NULL,
		guide_id BIGINT NULL,
		paid TINYINT(1) NOT NULL DEFAULT 0,
		cancelled TINYINT(1) NOT NULL DEFAULT 0,
		customer_name VARCHAR(255) NULL,
		participants INT NOT NULL DEFAULT 0,
		external_id VARCHAR(64) NULL UNIQUE,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_tours_date (tour_date, tour_time),
		CONSTRAINT fk_tours_guide FOREIGN KEY (guide_id) REFERENCES guides(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settings (
		name VARCHAR(64) PRIMARY KEY,
		value VARCHAR(255) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bokun_sync_log (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		trigger_source VARCHAR(32) NOT NULL,
		sync_type VARCHAR(16) NOT NULL,
		success TINYINT(1) NOT NULL,
		synced_count INT NOT NULL DEFAULT 0,
		total_bookings INT NOT NULL DEFAULT 0,
		error_message TEXT NULL,
		started_at DATETIME(3) NOT NULL,
		finished_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// MySQL is a Store backed by a MySQL database.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects, creating the database and tables when missing.
func OpenMySQL(ctx context.Context, cfg MySQLConfig) (*MySQL, error) {
	if err := ensureDatabaseExists(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &MySQL{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewMySQL wraps an open database. The schema must already exist.
func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

func ensureDatabaseExists(ctx context.Context, cfg MySQLConfig) error {
	dbName := strings.TrimSpace(cfg.DBName)
	if dbName == "" {
		return fmt.Errorf("empty DB_NAME")
	}

	adminDB, err := sql.Open("mysql", cfg.adminDSN())
	if err != nil {
		return err
	}
	defer adminDB.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := adminDB.PingContext(ctx); err != nil {
		return err
	}

	stmt := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		strings.ReplaceAll(dbName, "`", "``"),
	)
	if _, createErr := adminDB.ExecContext(ctx, stmt); createErr != nil {
		// Accounts without CREATE DATABASE may still own an existing schema.
		db, err := sql.Open("mysql", cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("create database %q failed: %v; fallback connection failed: %w", dbName, createErr, err)
		}
	}
	return nil
}

func (s *MySQL) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close implements Store.
func (s *MySQL) Close() error {
	return s.db.Close()
}

// UserByUsername implements Store.
func (s *MySQL) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// CreateUser implements Store.
func (s *MySQL) CreateUser(ctx context.Context, u User) (User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, u.Role)
	if err != nil {
		return User{}, translate(err)
	}
	u.ID, err = res.LastInsertId()
	return u, err
}

const guideColumns = `id, name, phone, email, languages, bio, photo_url, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuide(row rowScanner) (api.Guide, error) {
	var (
		g                        api.Guide
		email, langs, bio, photo sql.NullString
		createdAt                time.Time
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Phone, &email, &langs, &bio, &photo, &createdAt); err != nil {
		return api.Guide{}, err
	}
	g.Email = email.String
	g.Bio = bio.String
	g.PhotoURL = photo.String
	g.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	g.Languages = api.Languages{}
	if langs.Valid && langs.String != "" {
		if err := json.Unmarshal([]byte(langs.String), &g.Languages); err != nil {
			g.Languages = api.ParseLanguages(langs.String)
		}
	}
	return g, nil
}

// ListGuides implements Store.
func (s *MySQL) ListGuides(ctx context.Context, page Page) ([]api.Guide, int, error) {
	page = page.Normalize()
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guides`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guideColumns+` FROM guides ORDER BY name, id LIMIT ? OFFSET ?`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []api.Guide{}
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, g)
	}
	return out, total, rows.Err()
}

// GetGuide implements Store.
func (s *MySQL) GetGuide(ctx context.Context, id int64) (api.Guide, error) {
	g, err := scanGuide(s.db.QueryRowContext(ctx, `SELECT `+guideColumns+` FROM guides WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return api.Guide{}, ErrNotFound
	}
	return g, err
}

// CreateGuide implements Store.
func (s *MySQL) CreateGuide(ctx context.Context, in api.NewGuide) (api.Guide, error) {
	langs, err := json.Marshal(append([]string{}, in.Languages...))
	if err != nil {
		return api.Guide{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO guides (name, phone, email, languages, bio, photo_url) VALUES (?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(in.Name), strings.TrimSpace(in.Phone), nullString(in.Email),
		string(langs), nullString(in.Bio), nullString(in.PhotoURL))
	if err != nil {
		return api.Guide{}, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.Guide{}, err
	}
	return s.GetGuide(ctx, id)
}

// DeleteGuide implements Store.
func (s *MySQL) DeleteGuide(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM guides WHERE id = ?`, id)
}

const tourSelect = `SELECT t.id, t.title, t.duration, t.description, t.tour_date, t.tour_time,
	t.guide_id, g.name, t.paid, t.cancelled, t.customer_name, t.participants, t.external_id, t.updated_at
	FROM tours t LEFT JOIN guides g ON g.id = t.guide_id`

func scanTour(row rowScanner) (api.Tour, error) {
	var (
		t                            api.Tour
		desc, guideName, cust, extID sql.NullString
		guideID                      sql.NullInt64
		date, updatedAt              time.Time
		paid, cancelled              bool
	)
	err := row.Scan(&t.ID, &t.Title, &t.Duration, &desc, &date, &t.Time,
		&guideID, &guideName, &paid, &cancelled, &cust, &t.Participants, &extID, &updatedAt)
	if err != nil {
		return api.Tour{}, err
	}
	t.Description = desc.String
	t.Date = date.Format("2006-01-02")
	t.GuideID = guideID.Int64
	t.GuideName = guideName.String
	t.Paid = api.Flag(paid)
	t.Cancelled = api.Flag(cancelled)
	t.CustomerName = cust.String
	t.ExternalID = extID.String
	t.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return t, nil
}

// ListTours implements Store.
func (s *MySQL) ListTours(ctx context.Context, page Page) ([]api.Tour, int, error) {
	page = page.Normalize()
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tours`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		tourSelect+` ORDER BY t.tour_date, t.tour_time, t.id LIMIT ? OFFSET ?`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []api.Tour{}
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// GetTour implements Store.
func (s *MySQL) GetTour(ctx context.Context, id int64) (api.Tour, error) {
	t, err := scanTour(s.db.QueryRowContext(ctx, tourSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return api.Tour{}, ErrNotFound
	}
	return t, err
}

// CreateTour implements Store.
func (s *MySQL) CreateTour(ctx context.Context, in api.NewTour) (api.Tour, error) {
	paid := in.Paid != nil && *in.Paid
	cancelled := in.Cancelled != nil && *in.Cancelled
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tours (title, duration, description, tour_date, tour_time, guide_id, paid, cancelled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(in.Title), in.Duration, nullString(in.Description),
		strings.TrimSpace(in.Date), strings.TrimSpace(in.Time), in.GuideID, paid, cancelled)
	if err != nil {
		return api.Tour{}, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.Tour{}, err
	}
	return s.GetTour(ctx, id)
}

// UpdateTour implements Store.
func (s *MySQL) UpdateTour(ctx context.Context, id int64, patch api.TourPatch) (api.Tour, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Title != nil {
		add("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Duration != nil {
		add("duration", *patch.Duration)
	}
	if patch.Description != nil {
		add("description", nullString(*patch.Description))
	}
	if patch.Date != nil {
		add("tour_date", strings.TrimSpace(*patch.Date))
	}
	if patch.Time != nil {
		add("tour_time", strings.TrimSpace(*patch.Time))
	}
	if patch.GuideID != nil {
		add("guide_id", *patch.GuideID)
	}
	if patch.Paid != nil {
		add("paid", *patch.Paid)
	}
	if patch.Cancelled != nil {
		add("cancelled", *patch.Cancelled)
	}
	if len(sets) == 0 {
		return s.GetTour(ctx, id)
	}

	args = append(args, id)
	if _, err := s.db.ExecContext(ctx, `UPDATE tours SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return api.Tour{}, translate(err)
	}
	// Unchanged rows report zero affected rows, so existence is checked by
	// reading the tour back.
	return s.GetTour(ctx, id)
}

// DeleteTour implements Store.
func (s *MySQL) DeleteTour(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM tours WHERE id = ?`, id)
}

// UpsertBooking implements Store. MySQL reports one affected row for an
// insert, two for a changed update and none when nothing changed.
func (s *MySQL) UpsertBooking(ctx context.Context, b Booking) (bool, error) {
	var guideID any
	if b.GuideID > 0 {
		guideID = b.GuideID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tours (title, duration, description, tour_date, tour_time, guide_id, paid, cancelled,
			customer_name, participants, external_id)
		 VALUES (?, ?, ?, ?, ?, (SELECT id FROM guides WHERE id = ?), ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			title = VALUES(title), duration = VALUES(duration),
			description = COALESCE(VALUES(description), description),
			tour_date = VALUES(tour_date), tour_time = VALUES(tour_time),
			paid = VALUES(paid), cancelled = VALUES(cancelled),
			customer_name = VALUES(customer_name), participants = VALUES(participants)`,
		b.Title, b.Duration, nullString(b.Description), b.Date, b.Time, guideID,
		b.Paid, b.Cancelled, nullString(b.CustomerName), b.Participants, b.ExternalID)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SyncEnabled implements Store. A missing setting means enabled.
func (s *MySQL) SyncEnabled(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, settingSyncEnabled).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1" || strings.EqualFold(value, "true"), nil
}

// SetSyncEnabled implements Store.
func (s *MySQL) SetSyncEnabled(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (name, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)`,
		settingSyncEnabled, value)
	return err
}

// RecordSyncRun implements Store.
func (s *MySQL) RecordSyncRun(ctx context.Context, run SyncRun) (SyncRun, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bokun_sync_log (trigger_source, sync_type, success, synced_count, total_bookings,
			error_message, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Trigger, run.Type, run.Success, run.SyncedCount, run.TotalBookings,
		nullString(run.Error), run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return SyncRun{}, err
	}
	run.ID, err = res.LastInsertId()
	return run, err
}

// SyncRuns implements Store.
func (s *MySQL) SyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trigger_source, sync_type, success, synced_count, total_bookings, error_message,
			started_at, finished_at FROM bokun_sync_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var (
			run    SyncRun
			errMsg sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &run.Type, &run.Success, &run.SyncedCount,
			&run.TotalBookings, &errMsg, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.Error = errMsg.String
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *MySQL) deleteByID(ctx context.Context, query string, id int64) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDuplicate:
			return fmt.Errorf("%w: %s", ErrConflict, myErr.Message)
		case mysqlErrForeignKey:
			return ErrUnknownGuide
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
