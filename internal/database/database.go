package database

import (
	"database/sql"
	"fmt"
	"time"

	"trailhead/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB providing higher-level helper methods for
// interacting with the application's persistent store. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for better performance
	insertTrackStmt    *sql.Stmt
	insertPointStmt    *sql.Stmt
	trackExistsStmt    *sql.Stmt
	getTrackByIDStmt   *sql.Stmt
	countTracksStmt    *sql.Stmt
	updateGeohashStmt  *sql.Stmt
	deletePointsStmt   *sql.Stmt
	deleteTrackStmt    *sql.Stmt
	pointsByTrackStmt  *sql.Stmt
	missingGeohashStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string) (*Database, error) {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(5) // SQLite works better with fewer connections
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;", // Enable foreign key constraints
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	// Create tracks table
	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		distance REAL NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		elevation_gain REAL NOT NULL DEFAULT 0,
		elevation_loss REAL NOT NULL DEFAULT 0,
		max_elevation REAL NOT NULL DEFAULT 0,
		min_elevation REAL NOT NULL DEFAULT 0,
		start_time DATETIME,
		end_time DATETIME,
		north REAL NOT NULL DEFAULT 0,
		south REAL NOT NULL DEFAULT 0,
		east REAL NOT NULL DEFAULT 0,
		west REAL NOT NULL DEFAULT 0,
		geohash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// Create track_points table
	trackPointsTable := `
	CREATE TABLE IF NOT EXISTS track_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		elevation REAL,
		time DATETIME,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);`

	// Create indices for better performance
	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_geohash ON tracks(geohash);",           // Prefix pre-filter
		"CREATE INDEX IF NOT EXISTS idx_tracks_bounds ON tracks(south, north);",       // Bounds overlap
		"CREATE INDEX IF NOT EXISTS idx_tracks_created ON tracks(created_at);",        // Newest-first ordering
		"CREATE INDEX IF NOT EXISTS idx_tracks_distance ON tracks(distance);",         // Range filters
		"CREATE INDEX IF NOT EXISTS idx_tracks_duration ON tracks(duration);",         // Range filters
		"CREATE INDEX IF NOT EXISTS idx_points_track ON track_points(track_id, seq);", // Ordered point loads
	}

	tables := []string{tracksTable, trackPointsTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	// Run migrations
	if err := db.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run; keep them lightweight.
func (db *Database) runMigrations() error {
	// Migration 1: Add geohash column to tracks created before spatial
	// indexing existed. Rows start empty and are filled by the backfill pass.
	var columnExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('tracks')
		WHERE name = 'geohash'`).Scan(&columnExists)

	if err != nil {
		return err
	}

	if !columnExists {
		_, err = db.conn.Exec("ALTER TABLE tracks ADD COLUMN geohash TEXT NOT NULL DEFAULT ''")
		if err != nil {
			return err
		}

		_, err = db.conn.Exec("CREATE INDEX IF NOT EXISTS idx_tracks_geohash ON tracks(geohash)")
		if err != nil {
			return err
		}

		db.logger.Info("Added geohash column and index to tracks table")
	}

	return nil
}

// trackColumns is the column list every track SELECT uses, in scan order.
const trackColumns = `id, filename, name, COALESCE(description, ''), distance, duration,
	elevation_gain, elevation_loss, max_elevation, min_elevation,
	start_time, end_time, north, south, east, west, geohash, created_at`

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	// Insert track statement
	db.insertTrackStmt, err = db.conn.Prepare(`
		INSERT INTO tracks (filename, name, description, distance, duration,
			elevation_gain, elevation_loss, max_elevation, min_elevation,
			start_time, end_time, north, south, east, west, geohash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert track statement: %w", err)
	}

	// Insert point statement
	db.insertPointStmt, err = db.conn.Prepare(`
		INSERT INTO track_points (track_id, seq, latitude, longitude, elevation, time)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert point statement: %w", err)
	}

	// Track exists statement
	db.trackExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM tracks WHERE filename = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare track exists statement: %w", err)
	}

	// Get track by ID statement
	db.getTrackByIDStmt, err = db.conn.Prepare(
		"SELECT " + trackColumns + " FROM tracks WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare get track by ID statement: %w", err)
	}

	// Count tracks statement
	db.countTracksStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM tracks`)
	if err != nil {
		return fmt.Errorf("failed to prepare count tracks statement: %w", err)
	}

	// Update geohash statement
	db.updateGeohashStmt, err = db.conn.Prepare(`
		UPDATE tracks SET geohash = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update geohash statement: %w", err)
	}

	// Delete statements
	db.deletePointsStmt, err = db.conn.Prepare(`
		DELETE FROM track_points WHERE track_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete points statement: %w", err)
	}

	db.deleteTrackStmt, err = db.conn.Prepare(`
		DELETE FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete track statement: %w", err)
	}

	// Points by track statement
	db.pointsByTrackStmt, err = db.conn.Prepare(`
		SELECT latitude, longitude, elevation, time
		FROM track_points WHERE track_id = ? ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("failed to prepare points by track statement: %w", err)
	}

	// Missing geohash statement (for the backfill pass)
	db.missingGeohashStmt, err = db.conn.Prepare(`
		SELECT id, north, south, east, west
		FROM tracks WHERE geohash = '' ORDER BY id LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare missing geohash statement: %w", err)
	}

	return nil
}

// InsertTrack persists a track summary and its ordered point sequence as one
// transaction, returning the new track's database ID. The filename must be
// unique; a constraint violation surfaces as an error.
func (db *Database) InsertTrack(track *models.Track) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Stmt(db.insertTrackStmt).Exec(
		track.Filename, track.Name, track.Description,
		track.Distance, track.Duration,
		track.ElevationGain, track.ElevationLoss,
		track.MaxElevation, track.MinElevation,
		nullableTime(track.StartTime), nullableTime(track.EndTime),
		track.Bounds.North, track.Bounds.South, track.Bounds.East, track.Bounds.West,
		track.Geohash)
	if err != nil {
		db.logger.WithError(err).WithField("filename", track.Filename).Error("Failed to insert track")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	pointStmt := tx.Stmt(db.insertPointStmt)
	for i, pt := range track.Points {
		_, err := pointStmt.Exec(id, i, pt.Latitude, pt.Longitude,
			nullableFloat(pt.Elevation), nullableTime(pt.Time))
		if err != nil {
			db.logger.WithError(err).WithFields(logrus.Fields{
				"filename": track.Filename,
				"seq":      i,
			}).Error("Failed to insert track point")
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit track insert: %w", err)
	}

	return id, nil
}

// TrackExists checks whether a track with the given filename is persisted.
func (db *Database) TrackExists(filename string) (bool, error) {
	var count int
	if err := db.trackExistsStmt.QueryRow(filename).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountTracks returns the number of persisted tracks.
func (db *Database) CountTracks() (int, error) {
	var count int
	if err := db.countTracksStmt.QueryRow().Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetTrackByID returns one track, optionally with its full point sequence.
// Unknown IDs surface as sql.ErrNoRows.
func (db *Database) GetTrackByID(id int64, includePoints bool) (*models.Track, error) {
	track, err := scanTrack(db.getTrackByIDStmt.QueryRow(id))
	if err != nil {
		return nil, err
	}

	if includePoints {
		points, err := db.getTrackPoints(id)
		if err != nil {
			return nil, err
		}
		track.Points = points
	}

	return track, nil
}

// DeleteTrack removes a track and its points. Points are deleted first so
// the cascade does not depend on the foreign_keys pragma being honored.
func (db *Database) DeleteTrack(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Stmt(db.deletePointsStmt).Exec(id); err != nil {
		return fmt.Errorf("failed to delete track points: %w", err)
	}

	result, err := tx.Stmt(db.deleteTrackStmt).Exec(id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// UpdateTrackGeohash sets the geohash index key for a single track.
func (db *Database) UpdateTrackGeohash(id int64, hash string) error {
	_, err := db.updateGeohashStmt.Exec(hash, id)
	return err
}

// TracksWithoutGeohash returns up to limit tracks whose geohash has not been
// computed yet, with only the fields the backfill pass needs.
func (db *Database) TracksWithoutGeohash(limit int) ([]models.Track, error) {
	rows, err := db.missingGeohashStmt.Query(limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.Bounds.North, &t.Bounds.South,
			&t.Bounds.East, &t.Bounds.West); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// getTrackPoints loads the ordered point sequence for one track.
func (db *Database) getTrackPoints(trackID int64) ([]models.TrackPoint, error) {
	rows, err := db.pointsByTrackStmt.Query(trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.TrackPoint
	for rows.Next() {
		var (
			pt        models.TrackPoint
			elevation sql.NullFloat64
			timestamp sql.NullTime
		)
		if err := rows.Scan(&pt.Latitude, &pt.Longitude, &elevation, &timestamp); err != nil {
			return nil, err
		}
		if elevation.Valid {
			v := elevation.Float64
			pt.Elevation = &v
		}
		if timestamp.Valid {
			t := timestamp.Time
			pt.Time = &t
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// Close closes prepared statements and the underlying connection.
func (db *Database) Close() error {
	stmts := []*sql.Stmt{
		db.insertTrackStmt, db.insertPointStmt, db.trackExistsStmt,
		db.getTrackByIDStmt, db.countTracksStmt, db.updateGeohashStmt,
		db.deletePointsStmt, db.deleteTrackStmt, db.pointsByTrackStmt,
		db.missingGeohashStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}

// rowScanner lets scanTrack work for both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTrack scans one tracks row in trackColumns order.
func scanTrack(row rowScanner) (*models.Track, error) {
	var (
		t         models.Track
		startTime sql.NullTime
		endTime   sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Filename, &t.Name, &t.Description,
		&t.Distance, &t.Duration,
		&t.ElevationGain, &t.ElevationLoss, &t.MaxElevation, &t.MinElevation,
		&startTime, &endTime,
		&t.Bounds.North, &t.Bounds.South, &t.Bounds.East, &t.Bounds.West,
		&t.Geohash, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if startTime.Valid {
		t.StartTime = &startTime.Time
	}
	if endTime.Valid {
		t.EndTime = &endTime.Time
	}
	return &t, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
