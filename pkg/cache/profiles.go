package cache

import (
	"encoding/json"
	"time"
)

// Profile is the parsed form of a kind-0 ("metadata") event's content
// (spec.md §4.7). Known fields are promoted to struct members; anything
// else round-trips through Extra.
type Profile struct {
	Pubkey string `json:"-"`

	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`

	FetchedAt time.Time `json:"-"`
}

// ParseProfile decodes a kind-0 content payload into a Profile, preserving
// unknown keys in Extra (spec.md §4.7 "additional-fields bag").
func ParseProfile(pubkey, content string) (*Profile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	p := &Profile{Pubkey: pubkey, Extra: map[string]json.RawMessage{}}
	known := map[string]*string{
		"name": &p.Name, "display_name": &p.DisplayName, "about": &p.About,
		"picture": &p.Picture, "banner": &p.Banner, "website": &p.Website,
		"nip05": &p.NIP05, "lud16": &p.LUD16,
	}
	for k, v := range raw {
		if dst, ok := known[k]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				*dst = s
				continue
			}
		}
		p.Extra[k] = v
	}
	return p, nil
}

// Profiles is a typed Layered view keyed by pubkey hex (spec.md §4.7).
type Profiles struct {
	l   *Layered
	ttl time.Duration
}

// NewProfiles returns a profile sub-cache with the default TTL (1h per
// spec.md §4.7).
func NewProfiles(l *Layered, ttl time.Duration) *Profiles {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Profiles{l: l, ttl: ttl}
}

func profileKey(pubkey string) string { return "profile:" + pubkey }

// Get returns the cached profile for pubkey, if present and fresh.
func (c *Profiles) Get(pubkey string) (*Profile, bool) {
	return Get[*Profile](c.l, profileKey(pubkey))
}

// Put caches p under its pubkey.
func (c *Profiles) Put(p *Profile) error {
	return Set(c.l, profileKey(p.Pubkey), p, c.ttl, WriteThrough)
}
