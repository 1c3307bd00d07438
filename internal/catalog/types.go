package catalog

import "errors"

// ErrEmptyCategory is returned when a category lookup is given an empty id
var ErrEmptyCategory = errors.New("empty category ID")

// Default page sizes used when a caller does not ask for one
const (
	DefaultCategoryLimit = 24
	DefaultSearchLimit   = 50
)

// App is the public application record. It is a superset of the cached row
// with the marketplace metadata the remote API carries. Timestamps are
// always epoch seconds regardless of upstream encoding.
type App struct {
	AppID                 string       `json:"app_id"`
	ID                    string       `json:"id,omitempty"`
	Name                  string       `json:"name,omitempty"`
	Summary               string       `json:"summary,omitempty"`
	Description           string       `json:"description,omitempty"`
	Homepage              string       `json:"homepage,omitempty"`
	DownloadFlatpakRef    string       `json:"download_flatpak_ref,omitempty"`
	CurrentReleaseVersion string       `json:"current_release_version,omitempty"`
	CurrentReleaseDate    string       `json:"current_release_date,omitempty"`
	MainCategories        string       `json:"main_categories,omitempty"`
	SubCategories         []string     `json:"sub_categories,omitempty"`
	Keywords              []string     `json:"keywords,omitempty"`
	DownloadSize          *int64       `json:"download_size,omitempty"`
	Icon                  string       `json:"icon,omitempty"`
	Screenshots           []Screenshot `json:"screenshots,omitempty"`
	DeveloperName         string       `json:"developer_name,omitempty"`
	ProjectLicense        string       `json:"project_license,omitempty"`
	Runtime               string       `json:"runtime,omitempty"`
	Arches                []string     `json:"arches,omitempty"`
	Type                  string       `json:"type,omitempty"`
	AddedAt               *int64       `json:"added_at,omitempty"`
	UpdatedAt             *int64       `json:"updated_at,omitempty"`
	FavoritesCount        *int64       `json:"favorites_count,omitempty"`
	InstallsLastMonth     *int64       `json:"installs_last_month,omitempty"`
	IsMobileFriendly      *bool        `json:"isMobileFriendly,omitempty"`
	IsFreeLicense         *bool        `json:"is_free_license,omitempty"`
	Trending              *float64     `json:"trending,omitempty"`
	Verification
}

// Verification is the publisher verification block of an app
type Verification struct {
	Verified              *bool  `json:"verification_verified,omitempty"`
	Method                string `json:"verification_method,omitempty"`
	LoginName             string `json:"verification_login_name,omitempty"`
	LoginProvider         string `json:"verification_login_provider,omitempty"`
	LoginIsOrganization   *bool  `json:"verification_login_is_organization,omitempty"`
	Website               string `json:"verification_website,omitempty"`
	VerificationTimestamp *int64 `json:"verification_timestamp,omitempty"`
}

// Screenshot is one screenshot in several sizes
type Screenshot struct {
	ImgMobileURL  string `json:"img_mobile_url,omitempty"`
	ImgDesktopURL string `json:"img_desktop_url,omitempty"`
	ThumbURL      string `json:"thumb_url,omitempty"`
}

// Collection is a page of apps. Hits and Apps always hold the same slice.
type Collection struct {
	ID               string       `json:"id,omitempty"`
	Name             string       `json:"name,omitempty"`
	Description      string       `json:"description,omitempty"`
	Hits             []App        `json:"hits"`
	Apps             []App        `json:"apps"`
	Subcollections   []Collection `json:"subcollections,omitempty"`
	HitsPerPage      *int         `json:"hitsPerPage,omitempty"`
	Page             *int         `json:"page,omitempty"`
	ProcessingTimeMs *int         `json:"processingTimeMs,omitempty"`
	Query            string       `json:"query,omitempty"`
	TotalHits        int          `json:"totalHits"`
	TotalPages       *int         `json:"totalPages,omitempty"`
}

// SearchResponse is one page of search results
type SearchResponse struct {
	Hits             []App  `json:"hits"`
	Query            string `json:"query"`
	ProcessingTimeMs *int   `json:"processingTimeMs,omitempty"`
	TotalHits        int    `json:"totalHits"`
	HitsPerPage      *int   `json:"hitsPerPage,omitempty"`
	Page             *int   `json:"page,omitempty"`
	TotalPages       *int   `json:"totalPages,omitempty"`
}

// Homepage is the three homepage rows
type Homepage struct {
	Popular         []App `json:"popular"`
	Trending        []App `json:"trending"`
	RecentlyUpdated []App `json:"recentlyUpdated"`
}

func newCollection(id string, apps []App, totalHits int) Collection {
	if apps == nil {
		apps = []App{}
	}
	return Collection{ID: id, Hits: apps, Apps: apps, TotalHits: totalHits}
}

func emptyCollection(id string) Collection {
	return newCollection(id, nil, 0)
}

func emptyHomepage() Homepage {
	return Homepage{Popular: []App{}, Trending: []App{}, RecentlyUpdated: []App{}}
}

// pageBounds clamps [offset, offset+limit) to a sequence of length n
func pageBounds(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset > n {
		offset = n
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return offset, end
}
