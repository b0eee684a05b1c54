package record

import "testing"

func TestTitleFromCaption(t *testing.T) {
	cases := []struct {
		name    string
		caption string
		want    string
	}{
		{"hashtag cut", "Backstage cut 0714 #bts #drama", "Backstage cut 0714"},
		{"bracket form", "live【0715-2 rehearsal】clip #behind", "0715-2 rehearsal"},
		{"bracket beats hashtag", "【making of】 #bts #drama", "making of"},
		{"unclosed bracket falls through", "【dangling caption #x", "【dangling caption"},
		{"no hashtag", "plain caption with no tags", "plain caption with no tags"},
		{"leading space", "  padded title #x", "padded title"},
		{"empty", "", ""},
		{"only hashtags", "#a #b", "#a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFromCaption(tc.caption); got != tc.want {
				t.Errorf("TitleFromCaption(%q) = %q, want %q", tc.caption, got, tc.want)
			}
		})
	}
}

func TestDateTokenFromCaption(t *testing.T) {
	cases := []struct {
		name    string
		caption string
		want    string
	}{
		{"plain run", "clip 0714 extras", "0714"},
		{"bracketed", "【0715-2】making of", "0715"},
		{"first of several", "part 0623 redo 0715", "0623"},
		{"longer run skipped", "id 123456 then 0801", "0801"},
		{"five digits only", "serial 12345", UnknownDate},
		{"no digits", "no date at all", UnknownDate},
		{"empty", "", UnknownDate},
		{"run at end", "finale 1231", "1231"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DateTokenFromCaption(tc.caption); got != tc.want {
				t.Errorf("DateTokenFromCaption(%q) = %q, want %q", tc.caption, got, tc.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	t.Run("upstream id wins", func(t *testing.T) {
		v := Extract(RawItem{ID: "abc123", Caption: "title 0714 #tag", SourceURL: "https://cdn/v.m3u8"})
		if v.IdentityKey != "abc123" {
			t.Fatalf("IdentityKey = %q, want abc123", v.IdentityKey)
		}
		if v.Title != "title 0714" || v.DateToken != "0714" {
			t.Errorf("title/token = %q/%q", v.Title, v.DateToken)
		}
		if v.Status != StatusPending {
			t.Errorf("Status = %q, want pending", v.Status)
		}
	})

	t.Run("derived key fallback", func(t *testing.T) {
		v := Extract(RawItem{Caption: "making of 0715 #bts"})
		if v.IdentityKey != "making of 0715_0715" {
			t.Errorf("IdentityKey = %q", v.IdentityKey)
		}
	})

	t.Run("empty caption degenerates", func(t *testing.T) {
		v := Extract(RawItem{})
		if v.IdentityKey != "_0000" {
			t.Errorf("IdentityKey = %q, want _0000", v.IdentityKey)
		}
		if v.Title != "" || v.DateToken != UnknownDate {
			t.Errorf("title/token = %q/%q", v.Title, v.DateToken)
		}
	})
}

func TestIsPaid(t *testing.T) {
	if !(Video{}).IsPaid() {
		t.Error("empty SourceURL should be paid")
	}
	if (Video{SourceURL: "https://cdn/v.m3u8"}).IsPaid() {
		t.Error("non-empty SourceURL should not be paid")
	}
}
