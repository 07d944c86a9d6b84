package links

import (
	"net/url"
	"strings"
)

// Category is the closed-set classification tag assigned to a harvested URL.
type Category string

const (
	CategoryWhatsApp  Category = "whatsapp"
	CategoryTelegram  Category = "telegram"
	CategoryFacebook  Category = "facebook"
	CategoryInstagram Category = "instagram"
	CategoryTwitter   Category = "twitter"
	CategoryYouTube   Category = "youtube"
	CategoryTikTok    Category = "tiktok"
	CategoryWebsite   Category = "website"
	CategoryOther     Category = "other"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryWhatsApp,
		CategoryTelegram,
		CategoryFacebook,
		CategoryInstagram,
		CategoryTwitter,
		CategoryYouTube,
		CategoryTikTok,
		CategoryWebsite,
		CategoryOther,
	}
}

// domainCategories maps hostname suffixes to categories. Checked in the
// order returned by Categories for determinism.
var domainCategories = map[Category][]string{
	CategoryWhatsApp:  {"whatsapp.com", "wa.me"},
	CategoryTelegram:  {"telegram.org", "telegram.me", "t.me"},
	CategoryFacebook:  {"facebook.com", "fb.com", "fb.me"},
	CategoryInstagram: {"instagram.com", "instagr.am"},
	CategoryTwitter:   {"twitter.com", "x.com", "t.co"},
	CategoryYouTube:   {"youtube.com", "youtu.be"},
	CategoryTikTok:    {"tiktok.com"},
}

// Classify maps a URL to exactly one category. It is total, deterministic
// and side-effect-free: any parseable http(s) URL with an unknown host is
// a generic website, anything else is other.
func Classify(raw string) Category {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return CategoryOther
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return CategoryOther
	}
	host := strings.ToLower(u.Hostname())
	for _, cat := range Categories() {
		for _, domain := range domainCategories[cat] {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return cat
			}
		}
	}
	return CategoryWebsite
}
