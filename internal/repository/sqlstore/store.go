package sqlstore

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

var _ repository.AuctionDB = (*Store)(nil)

// Dialect selects the SQL driver and placeholder style
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// rebind rewrites ? placeholders to $n for postgres
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Config holds connection settings for a SQL-backed store
type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Store implements repository.AuctionDB on database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database, applies pool limits and creates the schema
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if cfg.Dialect != SQLite && cfg.Dialect != Postgres {
		return nil, fmt.Errorf("unsupported database dialect %q", cfg.Dialect)
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	dsn := cfg.DSN
	if cfg.Dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}

	utils.Info("Opening database", map[string]any{"dialect": string(cfg.Dialect)})
	db, err := sql.Open(cfg.Dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := New(db, cfg.Dialect)
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	utils.Info("Database initialized", map[string]any{"dialect": string(cfg.Dialect)})
	return s, nil
}

// sqliteDefaults are appended to a SQLite DSN unless the key or its driver
// alias is already set
var sqliteDefaults = []struct {
	key, alias, value string
}{
	{key: "_journal_mode", alias: "_journal", value: "WAL"},
	{key: "_busy_timeout", alias: "_timeout", value: "5000"},
	// immediate transactions serialize writers instead of failing on lock upgrade
	{key: "_txlock", value: "immediate"},
}

func sqliteDSN(dsn string) string {
	_, rawQuery, hasQuery := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		// leave a DSN the driver will reject untouched
		return dsn
	}
	sep := "&"
	if !hasQuery {
		sep = "?"
	} else if rawQuery == "" || strings.HasSuffix(rawQuery, "&") {
		sep = ""
	}
	for _, d := range sqliteDefaults {
		if params.Has(d.key) || (d.alias != "" && params.Has(d.alias)) {
			continue
		}
		dsn += sep + d.key + "=" + d.value
		sep = "&"
	}
	return dsn
}

// New wraps an already opened database handle
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close releases the connection pool
func (s *Store) Close() error { return s.db.Close() }

// InitSchema creates all tables and indexes if they do not exist
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) q(query string) string { return s.dialect.rebind(query) }

type rowScanner interface {
	Scan(dest ...any) error
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var a model.Auction
	var status string
	var start, end, deadline, created, updated int64
	err := row.Scan(&a.AuctionID, &a.ProductID, &start, &end, &deadline,
		&a.StartingBid, &a.BidIncrement, &a.CurrentBid, &a.ReservePrice, &a.LeaderID, &a.BidCount,
		&status, &a.Version, &created, &updated)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	a.StartTime = fromUnix(start)
	a.EndTime = fromUnix(end)
	a.RegistrationDeadline = fromUnix(deadline)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	return a, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var b model.Bid
	var accepted, client int64
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.Sequence, &accepted, &client); err != nil {
		return model.Bid{}, err
	}
	b.AcceptedAt = fromUnix(accepted)
	b.ClientTimestamp = fromUnix(client)
	return b, nil
}

func scanResult(row rowScanner) (model.AuctionResult, error) {
	var (
		r       model.AuctionResult
		outcome string
		settled int64
	)
	if err := row.Scan(&r.AuctionID, &outcome, &r.WinnerUserID, &r.WinningBid, &r.WinningSequence, &settled); err != nil {
		return model.AuctionResult{}, err
	}
	r.Outcome = model.Outcome(outcome)
	r.SettledAt = fromUnix(settled)
	return r, nil
}

// AddProduct stores or replaces catalog reference data
func (s *Store) AddProduct(ctx context.Context, product model.Product) error {
	_, err := s.db.ExecContext(ctx, s.q(queryInsertProduct),
		product.ProductID, product.Name, product.ImageURL, product.BasePrice)
	if err != nil {
		return fmt.Errorf("add product %s: %w", product.ProductID, err)
	}
	return nil
}

// GetProduct returns catalog reference data for a product
func (s *Store) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx, s.q(queryGetProduct), productID).
		Scan(&p.ProductID, &p.Name, &p.ImageURL, &p.BasePrice)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

// CreateAuction stores a new auction
func (s *Store) CreateAuction(ctx context.Context, a model.Auction) error {
	if a.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	res, err := s.db.ExecContext(ctx, s.q(queryInsertAuction),
		a.AuctionID, a.ProductID, toUnix(a.StartTime), toUnix(a.EndTime), toUnix(a.RegistrationDeadline),
		a.StartingBid, a.BidIncrement, a.CurrentBid, a.ReservePrice, a.LeaderID, a.BidCount,
		string(a.Status), a.Version, toUnix(a.CreatedAt), toUnix(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, biddingerrors.ErrDuplicateAuction)
	}
	return nil
}

// GetAuction returns the current state of an auction
func (s *Store) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	return s.getAuction(ctx, s.db, auctionID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getAuction(ctx context.Context, db queryer, auctionID string) (model.Auction, error) {
	a, err := scanAuction(db.QueryRowContext(ctx, s.q(queryGetAuction), auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// conflictCause explains why a version-guarded update touched no rows
func (s *Store) conflictCause(ctx context.Context, tx *sql.Tx, auctionID string, expectedVersion int64) error {
	var (
		status  string
		version int64
	)
	err := tx.QueryRowContext(ctx, s.q(queryAuctionStatus), auctionID).Scan(&status, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return biddingerrors.ErrAuctionNotFound
	case err != nil:
		return err
	case version != expectedVersion:
		return biddingerrors.ErrStaleRead
	case model.AuctionStatus(status).IsTerminal():
		return biddingerrors.ErrInvalidTransition
	default:
		return biddingerrors.ErrStaleRead
	}
}

// UpdateStatus moves an auction to a non-terminal status if its version is unchanged
func (s *Store) UpdateStatus(ctx context.Context, auctionID string, expectedVersion int64, to model.AuctionStatus, at time.Time) (model.Auction, error) {
	if to.IsTerminal() {
		return model.Auction{}, fmt.Errorf("update status of %s to %s: %w", auctionID, to, biddingerrors.ErrInvalidTransition)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update status of %s: %w", auctionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(queryUpdateStatus), string(to), toUnix(at), auctionID, expectedVersion)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update status of %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Auction{}, fmt.Errorf("update status of %s: %w", auctionID, err)
	}
	if n == 0 {
		return model.Auction{}, fmt.Errorf("update status of %s: %w", auctionID, s.conflictCause(ctx, tx, auctionID, expectedVersion))
	}

	a, err := s.getAuction(ctx, tx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Auction{}, fmt.Errorf("update status of %s: %w", auctionID, err)
	}
	return a, nil
}

// ListDueAuctions returns scheduled auctions past their start and active auctions past their end
func (s *Store) ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]model.Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	ts := toUnix(now)
	rows, err := s.db.QueryContext(ctx, s.q(queryListDueAuctions), ts, ts, limit)
	if err != nil {
		return nil, fmt.Errorf("list due auctions: %w", err)
	}
	defer rows.Close()
	return collectAuctions(rows)
}

func collectAuctions(rows *sql.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// GetAuctionsByUser returns all auctions a user has bid on
func (s *Store) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryAuctionsByUser), userID)
	if err != nil {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, err)
	}
	defer rows.Close()
	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}
	return auctions, nil
}

// AddRegistration records a paid registration; each (auction, user) pair is stored once
func (s *Store) AddRegistration(ctx context.Context, reg model.Registration) error {
	if _, err := s.getAuction(ctx, s.db, reg.AuctionID); err != nil {
		return fmt.Errorf("add registration: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.q(queryInsertRegistration),
		reg.AuctionID, reg.UserID, reg.FeePaid, toUnix(reg.PaidAt))
	if err != nil {
		return fmt.Errorf("add registration for auction %s user %s: %w", reg.AuctionID, reg.UserID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("add registration for auction %s user %s: %w", reg.AuctionID, reg.UserID, biddingerrors.ErrDuplicateRegistration)
	}
	return nil
}

// GetRegistration returns the registration of a user for an auction
func (s *Store) GetRegistration(ctx context.Context, auctionID, userID string) (model.Registration, error) {
	var (
		reg  model.Registration
		paid int64
	)
	err := s.db.QueryRowContext(ctx, s.q(queryGetRegistration), auctionID, userID).
		Scan(&reg.AuctionID, &reg.UserID, &reg.FeePaid, &paid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Registration{}, fmt.Errorf("get registration for auction %s user %s: %w", auctionID, userID, biddingerrors.ErrRegistrationNotFound)
	}
	if err != nil {
		return model.Registration{}, fmt.Errorf("get registration for auction %s user %s: %w", auctionID, userID, err)
	}
	reg.PaidAt = fromUnix(paid)
	return reg, nil
}

// AcceptBid appends a bid and updates the auction price, leader and end time
// in one transaction, provided the auction version still matches
func (s *Store) AcceptBid(ctx context.Context, params model.AcceptBidParams) (model.AcceptedBid, error) {
	bid := params.Bid
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		previousLeader, status string
		bidCount, end, version int64
	)
	err = tx.QueryRowContext(ctx, s.q(queryAuctionBidState), bid.AuctionID).
		Scan(&previousLeader, &bidCount, &end, &status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, err)
	}
	if version != params.ExpectedVersion {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrStaleRead)
	}
	acceptedAt := toUnix(bid.AcceptedAt)
	if model.AuctionStatus(status) != model.StatusActive || acceptedAt >= end {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotActive)
	}

	newEnd := end
	extended := false
	if ne := toUnix(params.NewEndTime); ne > end {
		newEnd = ne
		extended = true
	}
	bid.Sequence = bidCount + 1

	res, err := tx.ExecContext(ctx, s.q(queryApplyBid),
		bid.Amount, bid.UserID, bid.Sequence, newEnd, acceptedAt,
		bid.AuctionID, params.ExpectedVersion, acceptedAt)
	if err != nil {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, err)
	}
	if n == 0 {
		return model.AcceptedBid{}, fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrStaleRead)
	}

	if _, err := tx.ExecContext(ctx, s.q(queryInsertBid),
		bid.BidID, bid.AuctionID, bid.UserID, bid.Amount, bid.Sequence, acceptedAt, toUnix(bid.ClientTimestamp)); err != nil {
		return model.AcceptedBid{}, fmt.Errorf("insert bid for auction %s: %w", bid.AuctionID, err)
	}

	auction, err := s.getAuction(ctx, tx, bid.AuctionID)
	if err != nil {
		return model.AcceptedBid{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.AcceptedBid{}, fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, err)
	}

	return model.AcceptedBid{
		Bid:            bid,
		PreviousLeader: previousLeader,
		Auction:        auction,
		Extended:       extended,
	}, nil
}

// HighestBid returns the bid with the highest sequence for an auction
func (s *Store) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	b, err := scanBid(s.db.QueryRowContext(ctx, s.q(queryHighestBid), auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		if _, aerr := s.GetAuction(ctx, auctionID); aerr != nil {
			return model.Bid{}, fmt.Errorf("get highest bid: %w", aerr)
		}
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, err)
	}
	return b, nil
}

// ListBids returns up to limit bids with a sequence greater than afterSequence, in order
func (s *Store) ListBids(ctx context.Context, auctionID string, afterSequence int64, limit int) ([]model.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.QueryContext(ctx, s.q(queryListBids), auctionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// FinalizeAuction moves an auction to the terminal status of the result and
// stores the result, at most once per auction. A second call returns the
// stored result with biddingerrors.ErrAlreadySettled.
func (s *Store) FinalizeAuction(ctx context.Context, expectedVersion int64, result model.AuctionResult) (model.AuctionResult, error) {
	id := result.AuctionID
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanResult(tx.QueryRowContext(ctx, s.q(queryGetResult), id))
	switch {
	case err == nil:
		return existing, fmt.Errorf("finalize auction %s: %w", id, biddingerrors.ErrAlreadySettled)
	case !errors.Is(err, sql.ErrNoRows):
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, s.q(queryFinalizeAuction),
		string(result.Outcome.Status()), toUnix(result.SettledAt), id, expectedVersion)
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s: %w", id, err)
	}
	if n == 0 {
		return model.AuctionResult{}, fmt.Errorf("finalize auction %s: %w", id, s.conflictCause(ctx, tx, id, expectedVersion))
	}

	res, err = tx.ExecContext(ctx, s.q(queryInsertResult),
		id, string(result.Outcome), result.WinnerUserID, result.WinningBid, result.WinningSequence, toUnix(result.SettledAt))
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("store result of auction %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_ = tx.Rollback()
		stored, gerr := s.GetResult(ctx, id)
		if gerr != nil {
			return model.AuctionResult{}, gerr
		}
		return stored, fmt.Errorf("finalize auction %s: %w", id, biddingerrors.ErrAlreadySettled)
	}

	if err := tx.Commit(); err != nil {
		return model.AuctionResult{}, fmt.Errorf("commit result of auction %s: %w", id, err)
	}
	return result, nil
}

// GetResult returns the settled result of an auction
func (s *Store) GetResult(ctx context.Context, auctionID string) (model.AuctionResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, s.q(queryGetResult), auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		if _, aerr := s.GetAuction(ctx, auctionID); aerr != nil {
			return model.AuctionResult{}, fmt.Errorf("get result: %w", aerr)
		}
		return model.AuctionResult{}, fmt.Errorf("get result for auction %s: %w", auctionID, biddingerrors.ErrResultNotFound)
	}
	if err != nil {
		return model.AuctionResult{}, fmt.Errorf("get result for auction %s: %w", auctionID, err)
	}
	return r, nil
}
