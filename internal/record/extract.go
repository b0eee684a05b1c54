package record

import (
	"regexp"
	"strings"
)

// UnknownDate is the sentinel date token used when no 4-digit run
// can be found in a caption.
const UnknownDate = "0000"

// RawItem is one entry from a source feed before identity extraction.
type RawItem struct {
	ID          string
	Caption     string
	SourceURL   string
	CoverURL    string
	Description string
}

// dateToken matches a run of exactly four digits not embedded in a
// longer digit run.
var dateToken = regexp.MustCompile(`(^|[^0-9])([0-9]{4})([^0-9]|$)`)

// Extract builds a pending record skeleton from a raw item.
//
// When the item carries an upstream id, the id is the identity key
// and title extraction is cosmetic. Without an id the key is derived
// as title + "_" + date token, with "0000" standing in for an
// undatable caption. Degenerate captions yield degenerate keys such
// as "_0000"; the store accepts those as-is.
func Extract(raw RawItem) Video {
	title := TitleFromCaption(raw.Caption)
	token := DateTokenFromCaption(raw.Caption)

	key := raw.ID
	if key == "" {
		key = title + "_" + token
	}

	desc := raw.Description
	if desc == "" {
		desc = raw.Caption
	}

	return Video{
		IdentityKey: key,
		Title:       title,
		DateToken:   token,
		SourceURL:   raw.SourceURL,
		CoverURL:    raw.CoverURL,
		Description: desc,
		Status:      StatusPending,
	}
}

// TitleFromCaption extracts a display title from a caption. A
// 【bracketed】 segment wins when present; otherwise the caption up to
// the first " #" hashtag marker, trimmed. A caption with neither is
// used whole.
func TitleFromCaption(caption string) string {
	caption = strings.TrimSpace(caption)
	if open := strings.Index(caption, "【"); open >= 0 {
		rest := caption[open+len("【"):]
		if end := strings.Index(rest, "】"); end > 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if i := strings.Index(caption, " #"); i >= 0 {
		return strings.TrimSpace(caption[:i])
	}
	return caption
}

// DateTokenFromCaption returns the first run of exactly four
// consecutive digits in the caption, or UnknownDate when none exists.
// When several runs are present the first occurrence wins, whatever
// it means semantically.
func DateTokenFromCaption(caption string) string {
	m := dateToken.FindStringSubmatch(caption)
	if m == nil {
		return UnknownDate
	}
	return m[2]
}
