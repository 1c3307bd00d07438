package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// collectionHeadSize is how many apps a special collection page shows
	collectionHeadSize = 24
	// homepageRowSize is how many apps each homepage row shows
	homepageRowSize = 8
	searchLimit     = 100
)

const appColumns = "app_id, name, description, summary, download_flatpak_ref, icon_url, icon_path, icon_data, cached_at"

// listColumns leaves out icon_data; listings carry icon paths and URLs only
const listColumns = "app_id, name, description, summary, download_flatpak_ref, icon_url, icon_path, cached_at"

// Store reads and writes the cache tables
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new cache store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetAllApps returns every cached app without its icon bytes
func (s *Store) GetAllApps(ctx context.Context) ([]CachedApp, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+listColumns+" FROM apps ORDER BY app_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	apps := []CachedApp{}
	for rows.Next() {
		var (
			app                                                CachedApp
			name, description, summary, ref, iconURL, iconPath sql.NullString
		)
		if err := rows.Scan(&app.AppID, &name, &description, &summary, &ref, &iconURL, &iconPath, &app.CachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		app.Name = nullString(name)
		app.Description = nullString(description)
		app.Summary = nullString(summary)
		app.DownloadFlatpakRef = nullString(ref)
		app.IconURL = nullString(iconURL)
		app.IconPath = nullString(iconPath)
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate apps: %w", err)
	}

	return apps, nil
}

// GetApp returns a single app, or nil when it is not cached
func (s *Store) GetApp(ctx context.Context, id string) (*CachedApp, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+appColumns+" FROM apps WHERE app_id = $1", id)

	app, err := scanFullApp(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query app: %w", err)
	}

	return app, nil
}

// GetAppsBatch returns the rows that exist for ids. Only the columns selected
// by opts are loaded; the rest stay zero.
func (s *Store) GetAppsBatch(ctx context.Context, ids []string, opts BatchOptions) ([]CachedApp, error) {
	if len(ids) == 0 {
		return []CachedApp{}, nil
	}

	columns := []string{"app_id", "name", "summary", "download_flatpak_ref", "icon_url", "icon_path"}
	if opts.IncludeDescription {
		columns = append(columns, "description")
	}
	if opts.IncludeIconData {
		columns = append(columns, "icon_data")
	}
	if opts.IncludeCachedAt {
		columns = append(columns, "cached_at")
	}

	query := fmt.Sprintf("SELECT %s FROM apps WHERE app_id IN (%s)",
		strings.Join(columns, ", "), placeholders(len(ids), 1))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps batch: %w", err)
	}
	defer rows.Close()

	apps := []CachedApp{}
	for rows.Next() {
		var (
			app                                   CachedApp
			name, summary, ref, iconURL, iconPath sql.NullString
			description                           sql.NullString
		)
		dest := []interface{}{&app.AppID, &name, &summary, &ref, &iconURL, &iconPath}
		if opts.IncludeDescription {
			dest = append(dest, &description)
		}
		if opts.IncludeIconData {
			dest = append(dest, &app.IconData)
		}
		if opts.IncludeCachedAt {
			dest = append(dest, &app.CachedAt)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}

		app.Name = nullString(name)
		app.Summary = nullString(summary)
		app.DownloadFlatpakRef = nullString(ref)
		app.IconURL = nullString(iconURL)
		app.IconPath = nullString(iconPath)
		app.Description = nullString(description)
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate apps batch: %w", err)
	}

	return apps, nil
}

// GetCategories returns the known categories ordered by name
func (s *Store) GetCategories(ctx context.Context) ([]CachedCategory, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, cached_at FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []CachedCategory{}
	for rows.Next() {
		var c CachedCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	return categories, nil
}

// GetCategoryCollection returns a collection with its full ordered id list,
// or nil when it has never been cached
func (s *Store) GetCategoryCollection(ctx context.Context, id string) (*CachedCategoryCollection, error) {
	collection, err := s.getCollectionHeader(ctx, id)
	if err != nil || collection == nil {
		return collection, err
	}

	ids, err := s.collectionIDs(ctx, id, -1, 0)
	if err != nil {
		return nil, err
	}
	collection.AppIDs = ids

	return collection, nil
}

// GetCategoryCollectionWithApps returns the collection header (AppIDs left
// empty) and its first limit apps without descriptions or icon bytes
func (s *Store) GetCategoryCollectionWithApps(ctx context.Context, id string, limit int) (*CachedCategoryCollection, []CachedApp, error) {
	collection, err := s.getCollectionHeader(ctx, id)
	if err != nil || collection == nil {
		return nil, nil, err
	}
	collection.AppIDs = []string{}

	ids, err := s.collectionIDs(ctx, id, limit, 0)
	if err != nil {
		return nil, nil, err
	}

	apps, err := s.orderedBatch(ctx, ids, BatchOptions{})
	if err != nil {
		return nil, nil, err
	}

	return collection, apps, nil
}

// GetCollectionAppsPaginated returns one page of a collection and its size
func (s *Store) GetCollectionAppsPaginated(ctx context.Context, id string, limit, offset int) ([]CachedApp, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM category_collection_apps WHERE category_id = $1", id).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count collection apps: %w", err)
	}

	ids, err := s.collectionIDs(ctx, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	apps, err := s.orderedBatch(ctx, ids, BatchOptions{})
	if err != nil {
		return nil, 0, err
	}

	return apps, total, nil
}

// GetCollectionApps returns the head of a special collection with
// descriptions and icon bytes
func (s *Store) GetCollectionApps(ctx context.Context, collectionType string) ([]CachedApp, error) {
	if !IsSpecialCollection(collectionType) {
		return nil, fmt.Errorf("unknown collection type: %s", collectionType)
	}

	ids, err := s.collectionIDs(ctx, collectionType, collectionHeadSize, 0)
	if err != nil {
		return nil, err
	}

	return s.orderedBatch(ctx, ids, BatchOptions{IncludeDescription: true, IncludeIconData: true})
}

// GetHomepageCollections loads the heads of the three special collections
// with a single batch read for all their apps
func (s *Store) GetHomepageCollections(ctx context.Context) (*HomepageCollections, error) {
	heads := make([][]string, len(SpecialCollections))
	var all []string
	for i, collectionType := range SpecialCollections {
		ids, err := s.collectionIDs(ctx, collectionType, homepageRowSize, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s apps: %w", collectionType, err)
		}
		heads[i] = ids
		all = append(all, ids...)
	}

	apps, err := s.GetAppsBatch(ctx, all, BatchOptions{IncludeIconData: true})
	if err != nil {
		return nil, err
	}
	byID := indexApps(apps)

	return &HomepageCollections{
		Popular:         pick(byID, heads[0]),
		Trending:        pick(byID, heads[1]),
		RecentlyUpdated: pick(byID, heads[2]),
	}, nil
}

// GetIconBatch returns one data URL (or nil) per id, aligned with ids
func (s *Store) GetIconBatch(ctx context.Context, ids []string) ([]*string, error) {
	if len(ids) == 0 {
		return []*string{}, nil
	}

	query := fmt.Sprintf("SELECT app_id, icon_data FROM apps WHERE app_id IN (%s) AND icon_data IS NOT NULL",
		placeholders(len(ids), 1))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query icon data: %w", err)
	}
	defer rows.Close()

	icons := make(map[string]string)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan icon data: %w", err)
		}
		if len(data) > 0 {
			icons[id] = DataURL(data)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate icon data: %w", err)
	}

	result := make([]*string, len(ids))
	for i, id := range ids {
		if url, ok := icons[id]; ok {
			url := url
			result[i] = &url
		}
	}
	return result, nil
}

// GetIconDataURL returns the data URL for one app, or nil when it has no icon bytes
func (s *Store) GetIconDataURL(ctx context.Context, id string) (*string, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT icon_data FROM apps WHERE app_id = $1 AND icon_data IS NOT NULL", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query icon data: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	url := DataURL(data)
	return &url, nil
}

// HasIconData reports whether icon bytes are already stored for id
func (s *Store) HasIconData(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM apps WHERE app_id = $1 AND icon_data IS NOT NULL)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing icon: %w", err)
	}
	return exists, nil
}

// SetIconData stores downloaded icon bytes for id
func (s *Store) SetIconData(ctx context.Context, id string, data []byte) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE apps SET icon_data = $1 WHERE app_id = $2", data, id); err != nil {
		return fmt.Errorf("failed to update icon in database: %w", err)
	}
	return nil
}

// SearchApps matches query against name, summary and description and ranks
// name matches first
func (s *Store) SearchApps(ctx context.Context, query string) ([]SearchResult, error) {
	pattern := "%" + escapeLike(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, name, summary, icon_url, icon_path
		FROM apps
		WHERE name ILIKE $1 OR summary ILIKE $1 OR description ILIKE $1
		LIMIT `+strconv.Itoa(searchLimit), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search apps: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var name, summary, iconURL, iconPath sql.NullString
		if err := rows.Scan(&r.AppID, &name, &summary, &iconURL, &iconPath); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Name = nullString(name)
		r.Summary = nullString(summary)
		r.IconURL = nullString(iconURL)
		r.IconPath = nullString(iconPath)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	return rankSearchResults(query, results), nil
}

// CountApps returns the number of cached apps
func (s *Store) CountApps(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM apps").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count apps: %w", err)
	}
	return count, nil
}

// IsCacheReady reports whether the cache holds any apps
func (s *Store) IsCacheReady(ctx context.Context) (bool, error) {
	count, err := s.CountApps(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// WriteApps upserts apps in one transaction. Stored icon bytes survive an
// upsert that carries none.
func (s *Store) WriteApps(ctx context.Context, apps []CachedApp) error {
	if len(apps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO apps (app_id, name, description, summary, download_flatpak_ref, icon_url, icon_path, icon_data, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (app_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			summary = EXCLUDED.summary,
			download_flatpak_ref = EXCLUDED.download_flatpak_ref,
			icon_url = EXCLUDED.icon_url,
			icon_path = EXCLUDED.icon_path,
			icon_data = COALESCE(EXCLUDED.icon_data, apps.icon_data),
			cached_at = EXCLUDED.cached_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, app := range apps {
		cachedAt := app.CachedAt
		if cachedAt == 0 {
			cachedAt = s.now().Unix()
		}
		var iconData interface{}
		if len(app.IconData) > 0 {
			iconData = app.IconData
		}

		if _, err := stmt.ExecContext(ctx,
			app.AppID,
			nullable(app.Name),
			nullable(app.Description),
			nullable(app.Summary),
			nullable(app.DownloadFlatpakRef),
			nullable(app.IconURL),
			nullable(app.IconPath),
			iconData,
			cachedAt,
		); err != nil {
			return fmt.Errorf("failed to insert app %s: %w", app.AppID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// InsertMissingApps inserts apps that are not cached yet and leaves existing
// rows untouched
func (s *Store) InsertMissingApps(ctx context.Context, apps []CachedApp) error {
	if len(apps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, app := range apps {
		cachedAt := app.CachedAt
		if cachedAt == 0 {
			cachedAt = s.now().Unix()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO apps (app_id, name, summary, download_flatpak_ref, icon_url, cached_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (app_id) DO NOTHING
		`, app.AppID, nullable(app.Name), nullable(app.Summary), nullable(app.DownloadFlatpakRef), nullable(app.IconURL), cachedAt); err != nil {
			return fmt.Errorf("failed to insert app %s: %w", app.AppID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WriteCategories replaces the category list
func (s *Store) WriteCategories(ctx context.Context, categories []CachedCategory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM categories"); err != nil {
		return fmt.Errorf("failed to clear old categories: %w", err)
	}

	for _, c := range categories {
		cachedAt := c.CachedAt
		if cachedAt == 0 {
			cachedAt = s.now().Unix()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO categories (id, name, cached_at) VALUES ($1, $2, $3)",
			c.ID, c.Name, cachedAt,
		); err != nil {
			return fmt.Errorf("failed to insert category %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WriteCategoryCollection replaces a collection and its ranked app ids
func (s *Store) WriteCategoryCollection(ctx context.Context, collection CachedCategoryCollection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cachedAt := collection.CachedAt
	if cachedAt == 0 {
		cachedAt = s.now().Unix()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO category_collections (category_id, total_hits, cached_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (category_id) DO UPDATE SET total_hits = EXCLUDED.total_hits, cached_at = EXCLUDED.cached_at
	`, collection.CategoryID, collection.TotalHits, cachedAt); err != nil {
		return fmt.Errorf("failed to insert category collection: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM category_collection_apps WHERE category_id = $1", collection.CategoryID); err != nil {
		return fmt.Errorf("failed to delete old app associations: %w", err)
	}

	seen := make(map[string]bool, len(collection.AppIDs))
	position := 0
	for _, appID := range collection.AppIDs {
		// (category_id, app_id) is the primary key; upstream occasionally repeats an id
		if seen[appID] {
			continue
		}
		seen[appID] = true

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO category_collection_apps (category_id, app_id, position) VALUES ($1, $2, $3)",
			collection.CategoryID, appID, position,
		); err != nil {
			return fmt.Errorf("failed to insert app association: %w", err)
		}
		position++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Clear removes all cached state
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"category_collection_apps", "category_collections", "categories", "apps"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) getCollectionHeader(ctx context.Context, id string) (*CachedCategoryCollection, error) {
	var c CachedCategoryCollection
	err := s.db.QueryRowContext(ctx,
		"SELECT category_id, total_hits, cached_at FROM category_collections WHERE category_id = $1", id,
	).Scan(&c.CategoryID, &c.TotalHits, &c.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category collection: %w", err)
	}
	return &c, nil
}

// collectionIDs returns ranked ids; limit < 0 means no limit
func (s *Store) collectionIDs(ctx context.Context, id string, limit, offset int) ([]string, error) {
	query := "SELECT app_id FROM category_collection_apps WHERE category_id = $1 ORDER BY position"
	args := []interface{}{id}
	if limit >= 0 {
		query += " LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection apps: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var appID string
		if err := rows.Scan(&appID); err != nil {
			return nil, fmt.Errorf("failed to scan app id: %w", err)
		}
		ids = append(ids, appID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collection apps: %w", err)
	}

	return ids, nil
}

// orderedBatch loads ids and returns the found rows in ids order
func (s *Store) orderedBatch(ctx context.Context, ids []string, opts BatchOptions) ([]CachedApp, error) {
	if len(ids) == 0 {
		return []CachedApp{}, nil
	}
	apps, err := s.GetAppsBatch(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	return pick(indexApps(apps), ids), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFullApp(row rowScanner) (*CachedApp, error) {
	var (
		app                                                CachedApp
		name, description, summary, ref, iconURL, iconPath sql.NullString
	)
	if err := row.Scan(&app.AppID, &name, &description, &summary, &ref, &iconURL, &iconPath, &app.IconData, &app.CachedAt); err != nil {
		return nil, err
	}
	app.Name = nullString(name)
	app.Description = nullString(description)
	app.Summary = nullString(summary)
	app.DownloadFlatpakRef = nullString(ref)
	app.IconURL = nullString(iconURL)
	app.IconPath = nullString(iconPath)
	return &app, nil
}

func indexApps(apps []CachedApp) map[string]CachedApp {
	byID := make(map[string]CachedApp, len(apps))
	for _, app := range apps {
		byID[app.AppID] = app
	}
	return byID
}

// pick returns the apps for ids in ids order, skipping ids without a row
func pick(byID map[string]CachedApp, ids []string) []CachedApp {
	out := make([]CachedApp, 0, len(ids))
	for _, id := range ids {
		if app, ok := byID[id]; ok {
			out = append(out, app)
		}
	}
	return out
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullable(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// placeholders returns "$start, $start+1, ..." for n parameters
func placeholders(n, start int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
