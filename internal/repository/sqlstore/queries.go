package sqlstore

// Queries are written with ? placeholders and rebound per dialect.

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		base_price TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auctions (
		auction_id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		registration_deadline BIGINT NOT NULL,
		starting_bid TEXT NOT NULL,
		bid_increment TEXT NOT NULL,
		current_bid TEXT,
		reserve_price TEXT,
		leader_id TEXT NOT NULL DEFAULT '',
		bid_count BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_time)`,
	`CREATE TABLE IF NOT EXISTS bids (
		bid_id TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions(auction_id),
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		sequence BIGINT NOT NULL,
		accepted_at BIGINT NOT NULL,
		client_timestamp BIGINT NOT NULL DEFAULT 0,
		UNIQUE (auction_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bids_user ON bids(user_id)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		auction_id TEXT NOT NULL REFERENCES auctions(auction_id),
		user_id TEXT NOT NULL,
		fee_paid BOOLEAN NOT NULL,
		paid_at BIGINT NOT NULL,
		PRIMARY KEY (auction_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS auction_results (
		auction_id TEXT PRIMARY KEY REFERENCES auctions(auction_id),
		outcome TEXT NOT NULL,
		winner_user_id TEXT NOT NULL DEFAULT '',
		winning_bid TEXT,
		winning_sequence BIGINT NOT NULL DEFAULT 0,
		settled_at BIGINT NOT NULL
	)`,
}

const auctionColumns = `auction_id, product_id, start_time, end_time, registration_deadline,
	starting_bid, bid_increment, current_bid, reserve_price, leader_id, bid_count,
	status, version, created_at, updated_at`

const bidColumns = `bid_id, auction_id, user_id, amount, sequence, accepted_at, client_timestamp`

const resultColumns = `auction_id, outcome, winner_user_id, winning_bid, winning_sequence, settled_at`

const (
	queryInsertProduct = `
		INSERT INTO products (product_id, name, image_url, base_price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET name = excluded.name, image_url = excluded.image_url, base_price = excluded.base_price`

	queryGetProduct = `
		SELECT product_id, name, image_url, base_price FROM products WHERE product_id = ?`

	queryInsertAuction = `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (auction_id) DO NOTHING`

	queryGetAuction = `
		SELECT ` + auctionColumns + ` FROM auctions WHERE auction_id = ?`

	queryUpdateStatus = `
		UPDATE auctions SET status = ?, version = version + 1, updated_at = ?
		WHERE auction_id = ? AND version = ? AND status NOT IN ('ended_sold', 'ended_unsold', 'cancelled')`

	queryListDueAuctions = `
		SELECT ` + auctionColumns + ` FROM auctions
		WHERE (status = 'active' AND end_time <= ?) OR (status = 'scheduled' AND start_time <= ?)
		ORDER BY end_time ASC
		LIMIT ?`

	queryAuctionsByUser = `
		SELECT ` + auctionColumns + ` FROM auctions
		WHERE auction_id IN (SELECT DISTINCT auction_id FROM bids WHERE user_id = ?)
		ORDER BY created_at ASC`

	queryInsertRegistration = `
		INSERT INTO registrations (auction_id, user_id, fee_paid, paid_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (auction_id, user_id) DO NOTHING`

	queryGetRegistration = `
		SELECT auction_id, user_id, fee_paid, paid_at FROM registrations
		WHERE auction_id = ? AND user_id = ?`

	queryAuctionBidState = `
		SELECT leader_id, bid_count, end_time, status, version FROM auctions WHERE auction_id = ?`

	// conditional write: only succeeds if nobody changed the auction since it was read
	queryApplyBid = `
		UPDATE auctions
		SET current_bid = ?, leader_id = ?, bid_count = ?, end_time = ?, version = version + 1, updated_at = ?
		WHERE auction_id = ? AND version = ? AND status = 'active' AND end_time > ?`

	queryInsertBid = `
		INSERT INTO bids (` + bidColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryHighestBid = `
		SELECT ` + bidColumns + ` FROM bids WHERE auction_id = ?
		ORDER BY sequence DESC LIMIT 1`

	queryListBids = `
		SELECT ` + bidColumns + ` FROM bids
		WHERE auction_id = ? AND sequence > ?
		ORDER BY sequence ASC
		LIMIT ?`

	queryAuctionStatus = `
		SELECT status, version FROM auctions WHERE auction_id = ?`

	queryFinalizeAuction = `
		UPDATE auctions SET status = ?, version = version + 1, updated_at = ?
		WHERE auction_id = ? AND version = ? AND status NOT IN ('ended_sold', 'ended_unsold', 'cancelled')`

	queryInsertResult = `
		INSERT INTO auction_results (` + resultColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (auction_id) DO NOTHING`

	queryGetResult = `
		SELECT ` + resultColumns + ` FROM auction_results WHERE auction_id = ?`
)
