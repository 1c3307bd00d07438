package catalog

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/blossom-os/softwarehub/internal/cache"
)

// NormalizeTimestamp returns integer epoch seconds. Integral numbers pass
// through unchanged; fractional ones are truncated toward zero, matching the
// string path, and numbers outside the int64 range are nil. Strings are
// parsed as base-10 integers the way JavaScript's parseInt does: leading
// whitespace is skipped and the longest integer prefix wins. Anything else
// is nil.
func NormalizeTimestamp(v gjson.Result) *int64 {
	switch v.Type {
	case gjson.Number:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return &n
		}
		f := math.Trunc(v.Num)
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil
		}
		n := int64(f)
		return &n
	case gjson.String:
		n, ok := parseIntPrefix(v.Str)
		if !ok {
			return nil
		}
		return &n
	default:
		return nil
	}
}

func parseIntPrefix(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// field returns the first of names present on v; the canonical spelling
// goes first so it wins when upstream sends both
func field(v gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if r := v.Get(name); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func stringField(v gjson.Result, names ...string) string {
	r := field(v, names...)
	if r.IsArray() || r.IsObject() {
		return ""
	}
	return r.String()
}

func intPtr(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	n := int(r.Int())
	return &n
}

func int64Ptr(r gjson.Result) *int64 {
	if r.Type != gjson.Number {
		return nil
	}
	n := r.Int()
	return &n
}

func floatPtr(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	n := r.Float()
	return &n
}

func boolPtr(r gjson.Result) *bool {
	if r.Type != gjson.True && r.Type != gjson.False {
		return nil
	}
	b := r.Bool()
	return &b
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, item := range r.Array() {
		if item.Type == gjson.String {
			out = append(out, item.Str)
		}
	}
	return out
}

// NormalizeApp reshapes an upstream app object into an App
func NormalizeApp(v gjson.Result) App {
	app := App{
		AppID:                 cache.AppIDOf(v),
		ID:                    stringField(v, "id"),
		Name:                  stringField(v, "name"),
		Summary:               stringField(v, "summary"),
		Description:           stringField(v, "description"),
		Homepage:              stringField(v, "homepage"),
		DownloadFlatpakRef:    stringField(v, "download_flatpak_ref", "downloadFlatpakRef"),
		CurrentReleaseVersion: stringField(v, "current_release_version", "currentReleaseVersion"),
		CurrentReleaseDate:    stringField(v, "current_release_date", "currentReleaseDate"),
		MainCategories:        stringField(v, "main_categories", "mainCategories"),
		SubCategories:         stringList(field(v, "sub_categories", "subCategories")),
		Keywords:              stringList(v.Get("keywords")),
		DownloadSize:          int64Ptr(field(v, "download_size", "downloadSize")),
		Icon:                  stringField(v, "icon", "iconDesktopUrl"),
		DeveloperName:         stringField(v, "developer_name", "developerName"),
		ProjectLicense:        stringField(v, "project_license", "projectLicense"),
		Runtime:               stringField(v, "runtime"),
		Arches:                stringList(v.Get("arches")),
		Type:                  stringField(v, "type"),
		AddedAt:               NormalizeTimestamp(field(v, "added_at", "addedAt")),
		UpdatedAt:             NormalizeTimestamp(field(v, "updated_at", "updatedAt")),
		FavoritesCount:        int64Ptr(field(v, "favorites_count", "favoritesCount")),
		InstallsLastMonth:     int64Ptr(field(v, "installs_last_month", "installsLastMonth")),
		IsMobileFriendly:      boolPtr(field(v, "isMobileFriendly", "is_mobile_friendly")),
		IsFreeLicense:         boolPtr(field(v, "is_free_license", "isFreeLicense")),
		Trending:              floatPtr(v.Get("trending")),
		Verification: Verification{
			Verified:              boolPtr(field(v, "verification_verified", "verificationVerified")),
			Method:                stringField(v, "verification_method", "verificationMethod"),
			LoginName:             stringField(v, "verification_login_name", "verificationLoginName"),
			LoginProvider:         stringField(v, "verification_login_provider", "verificationLoginProvider"),
			LoginIsOrganization:   boolPtr(field(v, "verification_login_is_organization", "verificationLoginIsOrganization")),
			Website:               stringField(v, "verification_website", "verificationWebsite"),
			VerificationTimestamp: NormalizeTimestamp(field(v, "verification_timestamp", "verificationTimestamp")),
		},
	}

	for _, s := range v.Get("screenshots").Array() {
		app.Screenshots = append(app.Screenshots, Screenshot{
			ImgMobileURL:  s.Get("img_mobile_url").String(),
			ImgDesktopURL: s.Get("img_desktop_url").String(),
			ThumbURL:      s.Get("thumb_url").String(),
		})
	}

	return app
}

func normalizeApps(list gjson.Result) []App {
	items := list.Array()
	apps := make([]App, 0, len(items))
	for _, item := range items {
		// Some endpoints list bare ids instead of objects
		if item.Type == gjson.String {
			apps = append(apps, App{AppID: item.Str})
			continue
		}
		apps = append(apps, NormalizeApp(item))
	}
	return apps
}

// NormalizeCollection reshapes an upstream collection object. A bare array
// is treated as the hit list of an unnamed collection.
func NormalizeCollection(v gjson.Result) Collection {
	if v.IsArray() {
		apps := normalizeApps(v)
		return newCollection("", apps, len(apps))
	}

	var apps []App
	if hits := cache.CollectionHits(v); hits.Exists() {
		apps = normalizeApps(hits)
	}

	totalHits := len(apps)
	if r := field(v, "totalHits", "total_hits"); r.Type == gjson.Number {
		totalHits = int(r.Int())
	}

	c := newCollection(stringField(v, "id"), apps, totalHits)
	c.Name = stringField(v, "name")
	c.Description = stringField(v, "description")
	c.Query = stringField(v, "query")
	c.HitsPerPage = intPtr(field(v, "hitsPerPage", "hits_per_page"))
	c.Page = intPtr(v.Get("page"))
	c.ProcessingTimeMs = intPtr(field(v, "processingTimeMs", "processing_time_ms"))
	c.TotalPages = intPtr(field(v, "totalPages", "total_pages"))

	for _, sub := range v.Get("subcollections").Array() {
		c.Subcollections = append(c.Subcollections, NormalizeCollection(sub))
	}

	return c
}

// NormalizeSearch reshapes a search response, which upstream sends either as
// a bare array or as an object with hits
func NormalizeSearch(v gjson.Result, query string) SearchResponse {
	c := NormalizeCollection(v)
	resp := SearchResponse{
		Hits:             c.Hits,
		Query:            query,
		ProcessingTimeMs: c.ProcessingTimeMs,
		TotalHits:        c.TotalHits,
		HitsPerPage:      c.HitsPerPage,
		Page:             c.Page,
		TotalPages:       c.TotalPages,
	}
	return resp
}

// ConvertIconPath returns a locally stored icon path in a form clients can
// load. Paths that are already URLs pass through.
func ConvertIconPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	for _, prefix := range []string{"data:", "http://", "https://", "file://"} {
		if strings.HasPrefix(path, prefix) {
			return path
		}
	}
	if strings.HasPrefix(path, "/") {
		return "file://" + path
	}
	return path
}
