package cache

// CachedApp is one application row in the local cache.
// IconData, when present, is authoritative over IconPath and IconURL.
type CachedApp struct {
	AppID              string  `json:"app_id"`
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	Summary            *string `json:"summary,omitempty"`
	DownloadFlatpakRef *string `json:"download_flatpak_ref,omitempty"`
	IconURL            *string `json:"icon_url,omitempty"`
	IconPath           *string `json:"icon_path,omitempty"`
	IconData           []byte  `json:"icon_data,omitempty"`
	CachedAt           int64   `json:"cached_at"`
}

// CachedCategory is immutable once fetched within a session
type CachedCategory struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	CachedAt int64  `json:"cached_at" yaml:"-"`
}

// CachedCategoryCollection holds the ranked app ids of a category or special
// collection. TotalHits may exceed len(AppIDs).
type CachedCategoryCollection struct {
	CategoryID string   `json:"category_id"`
	AppIDs     []string `json:"app_ids"`
	TotalHits  int      `json:"total_hits"`
	CachedAt   int64    `json:"cached_at"`
}

// SearchResult is the reduced row returned by local search
type SearchResult struct {
	AppID    string  `json:"app_id"`
	Name     *string `json:"name,omitempty"`
	Summary  *string `json:"summary,omitempty"`
	IconURL  *string `json:"icon_url,omitempty"`
	IconPath *string `json:"icon_path,omitempty"`
}

// BatchOptions selects the optional columns of a batch read
type BatchOptions struct {
	IncludeDescription bool
	IncludeIconData    bool
	IncludeCachedAt    bool
}

// HomepageCollections is the three homepage rows in display order
type HomepageCollections struct {
	Popular         []CachedApp `json:"popular"`
	Trending        []CachedApp `json:"trending"`
	RecentlyUpdated []CachedApp `json:"recentlyUpdated"`
}

// Special collection types stored alongside category collections
const (
	CollectionPopular         = "popular"
	CollectionTrending        = "trending"
	CollectionRecentlyUpdated = "recently-updated"
)

// SpecialCollections lists the special collections in refresh priority order
var SpecialCollections = []string{CollectionPopular, CollectionTrending, CollectionRecentlyUpdated}

// IsSpecialCollection reports whether t names a special collection
func IsSpecialCollection(t string) bool {
	for _, c := range SpecialCollections {
		if c == t {
			return true
		}
	}
	return false
}

// StringPtr returns nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
