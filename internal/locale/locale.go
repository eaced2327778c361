// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package locale renders admission rejections for players.
package locale

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"github.com/holomush/gatekeeper/internal/admission"
)

// Message keys.
const (
	KeyNoLicense        = "no_license"
	KeyUserIDIsActive   = "userid_is_active"
	KeyBanned           = "banned"
	KeyBannedUntil      = "banned_until"
	KeyServerRestarting = "server_restarting"
	KeyLoadFailed       = "load_failed"
)

// BanTimeLayout is how ban expiry times are shown to players.
const BanTimeLayout = "2006-01-02 15:04 MST"

var requiredKeys = []string{
	KeyNoLicense, KeyUserIDIsActive, KeyBanned,
	KeyBannedUntil, KeyServerRestarting, KeyLoadFailed,
}

//go:embed locales/*.yaml
var embeddedFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog holds the rejection messages for every supported language.
type Catalog struct {
	builder  *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
}

var _ admission.Messages = (*Catalog)(nil)

// Load reads the embedded catalogs. defaultLang is used when a player's
// language is unknown or unsupported.
func Load(defaultLang string) (*Catalog, error) {
	return LoadFS(embeddedFS, defaultLang)
}

// LoadFS reads locales/*.yaml from fsys.
func LoadFS(fsys fs.FS, defaultLang string) (*Catalog, error) {
	fallback, err := language.Parse(defaultLang)
	if err != nil {
		return nil, oops.Code("LOCALE_INVALID").With("language", defaultLang).Wrap(err)
	}

	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, oops.Code("LOCALE_LOAD_FAILED").Wrap(err)
	}
	sort.Strings(paths)

	builder := catalog.NewBuilder(catalog.Fallback(fallback))
	var tags []language.Tag
	for _, p := range paths {
		tag, err := loadFile(fsys, p, builder)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}

	// The fallback goes first so the matcher prefers it on ties.
	idx := -1
	for i, t := range tags {
		if t.String() == fallback.String() {
			idx = i
		}
	}
	if idx < 0 {
		return nil, oops.Code("LOCALE_INVALID").
			With("language", defaultLang).
			Errorf("no catalog for default language")
	}
	tags[0], tags[idx] = tags[idx], tags[0]

	return &Catalog{
		builder:  builder,
		tags:     tags,
		matcher:  language.NewMatcher(tags),
		fallback: fallback,
	}, nil
}

func loadFile(fsys fs.FS, p string, builder *catalog.Builder) (language.Tag, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return language.Und, oops.Code("LOCALE_LOAD_FAILED").With("path", p).Wrap(err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return language.Und, oops.Code("LOCALE_LOAD_FAILED").With("path", p).Wrap(err)
	}

	want := strings.TrimSuffix(path.Base(p), ".yaml")
	if file.Locale != want {
		return language.Und, oops.Code("LOCALE_LOAD_FAILED").
			With("path", p).
			Errorf("locale %q does not match file name", file.Locale)
	}
	tag, err := language.Parse(file.Locale)
	if err != nil {
		return language.Und, oops.Code("LOCALE_LOAD_FAILED").With("path", p).Wrap(err)
	}

	for _, key := range requiredKeys {
		msg, ok := file.Messages[key]
		if !ok {
			return language.Und, oops.Code("LOCALE_LOAD_FAILED").
				With("path", p).
				Errorf("missing message %q", key)
		}
		if err := builder.SetString(tag, key, msg); err != nil {
			return language.Und, oops.Code("LOCALE_LOAD_FAILED").With("path", p).With("key", key).Wrap(err)
		}
	}
	return tag, nil
}

// Languages returns the supported language tags, default first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tags))
	for i, t := range c.tags {
		out[i] = t.String()
	}
	return out
}

// Match picks the best supported language for lang, which may be a BCP 47
// tag or an Accept-Language header value.
func (c *Catalog) Match(lang string) language.Tag {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return c.fallback
	}
	desired, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(desired) == 0 {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(desired...)
	if conf == language.No {
		return c.fallback
	}
	return c.tags[idx]
}

// Message renders key in the best match for lang.
func (c *Catalog) Message(lang, key string, args ...any) string {
	p := message.NewPrinter(c.Match(lang), message.Catalog(c.builder))
	return p.Sprintf(key, args...)
}

// Format implements admission.Messages. Load faults always render the
// generic message.
func (c *Catalog) Format(lang string, r *admission.Rejection) string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case admission.KindNoLicense:
		return c.Message(lang, KeyNoLicense)
	case admission.KindDuplicateSession:
		return c.Message(lang, KeyUserIDIsActive, r.UserID.String())
	case admission.KindBanned:
		return c.formatBan(lang, r.Ban)
	case admission.KindLockdownActive:
		if r.Reason != "" {
			return r.Reason
		}
		return c.Message(lang, KeyServerRestarting)
	default:
		return c.Message(lang, KeyLoadFailed)
	}
}

func (c *Catalog) formatBan(lang string, ban *admission.BanRecord) string {
	if ban == nil {
		return c.Message(lang, KeyBanned, "")
	}
	if ban.Permanent() {
		return c.Message(lang, KeyBanned, ban.Reason)
	}
	return c.Message(lang, KeyBannedUntil, ban.UnbanAt.UTC().Format(BanTimeLayout), ban.Reason)
}
