package pagination

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name      string
		in        Params
		wantPage  int
		wantLimit int
	}{
		{"defaults", Params{}, 1, DefaultLimit},
		{"negative page", Params{Page: -3, Limit: 10}, 1, 10},
		{"limit capped", Params{Page: 2, Limit: 500}, 2, MaxLimit},
		{"passthrough", Params{Page: 4, Limit: 25}, 4, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if got.Page != tc.wantPage || got.Limit != tc.wantLimit {
				t.Fatalf("got page=%d limit=%d, want page=%d limit=%d", got.Page, got.Limit, tc.wantPage, tc.wantLimit)
			}
		})
	}
}

func TestFromQuery(t *testing.T) {
	p := FromQuery("3", "20")
	if p.Page != 3 || p.Limit != 20 {
		t.Fatalf("unexpected params %+v", p)
	}
	p = FromQuery("junk", "")
	if p.Page != 1 || p.Limit != DefaultLimit {
		t.Fatalf("expected defaults on malformed input, got %+v", p)
	}
}

func TestOffset(t *testing.T) {
	if got := (Params{Page: 1, Limit: 50}).Offset(); got != 0 {
		t.Fatalf("expected offset 0, got %d", got)
	}
	if got := (Params{Page: 3, Limit: 20}).Offset(); got != 40 {
		t.Fatalf("expected offset 40, got %d", got)
	}
	if got := (Params{}).Offset(); got != 0 {
		t.Fatalf("expected zero-value offset 0, got %d", got)
	}
}

func TestNewMeta(t *testing.T) {
	meta := NewMeta(Params{Page: 2, Limit: 20}, 41)
	if meta.Pages != 3 {
		t.Fatalf("expected 3 pages for 41 rows at limit 20, got %d", meta.Pages)
	}
	if meta.Total != 41 || meta.Page != 2 || meta.Limit != 20 {
		t.Fatalf("unexpected meta %+v", meta)
	}

	meta = NewMeta(Params{Page: 1, Limit: 20}, 40)
	if meta.Pages != 2 {
		t.Fatalf("expected 2 pages for exact multiple, got %d", meta.Pages)
	}

	meta = NewMeta(Params{}, 0)
	if meta.Pages != 0 {
		t.Fatalf("expected 0 pages for empty set, got %d", meta.Pages)
	}
}
