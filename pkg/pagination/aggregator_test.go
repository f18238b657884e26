package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// scriptedSource serves pages keyed by cursor and records the cursors it saw.
type scriptedSource struct {
	pages   [][]string
	failAt  int
	failErr error
	seen    []string
}

func (s *scriptedSource) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	s.seen = append(s.seen, cursor)
	index := len(s.seen) - 1

	if s.failAt > 0 && index+1 == s.failAt {
		return nil, s.failErr
	}

	page := &Page{Records: []json.RawMessage{}}
	if index < len(s.pages) {
		for _, id := range s.pages[index] {
			page.Records = append(page.Records, json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)))
		}
	}
	if index+1 < len(s.pages) {
		page.Offset = fmt.Sprintf("cursor-%d", index+1)
	}
	return page, nil
}

func ids(t *testing.T, records []json.RawMessage) []string {
	t.Helper()
	out := make([]string, 0, len(records))
	for _, r := range records {
		var rec struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(r, &rec); err != nil {
			t.Fatalf("bad record %s: %v", r, err)
		}
		out = append(out, rec.ID)
	}
	return out
}

func TestFetchAll_ConcatenatesInCursorOrder(t *testing.T) {
	tests := []struct {
		name  string
		pages [][]string
		want  []string
	}{
		{"single empty page", [][]string{{}}, []string{}},
		{"single page", [][]string{{"a", "b"}}, []string{"a", "b"}},
		{"three pages", [][]string{{"a", "b"}, {"c"}, {"d", "e", "f"}}, []string{"a", "b", "c", "d", "e", "f"}},
		{"empty middle page", [][]string{{"a"}, {}, {"b"}}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &scriptedSource{pages: tt.pages}
			agg := NewAggregator(DefaultConfig())

			records, err := agg.FetchAll(context.Background(), "employees", source)
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			if records == nil {
				t.Fatal("records must not be nil")
			}

			got := ids(t, records)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("record %d = %q, want %q", i, got[i], tt.want[i])
				}
			}

			if len(source.seen) != len(tt.pages) {
				t.Errorf("fetched %d pages, want %d", len(source.seen), len(tt.pages))
			}
			if source.seen[0] != "" {
				t.Errorf("first call cursor = %q, want empty", source.seen[0])
			}
			for i := 1; i < len(source.seen); i++ {
				if want := fmt.Sprintf("cursor-%d", i); source.seen[i] != want {
					t.Errorf("call %d cursor = %q, want %q", i+1, source.seen[i], want)
				}
			}
		})
	}
}

func TestFetchAll_AbortsOnFailingPage(t *testing.T) {
	failure := errors.New("status 422")
	source := &scriptedSource{
		pages:   [][]string{{"a"}, {"b"}, {"c"}, {"d"}},
		failAt:  3,
		failErr: failure,
	}
	agg := NewAggregator(DefaultConfig())

	records, err := agg.FetchAll(context.Background(), "attendance", source)

	if !errors.Is(err, failure) {
		t.Fatalf("err = %v, want wrapped page failure", err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil (no partial data)", records)
	}
	if len(source.seen) != 3 {
		t.Errorf("fetched %d pages, want 3 (no pages after the failure)", len(source.seen))
	}
}

func TestFetchAll_PageLimit(t *testing.T) {
	calls := 0
	endless := PageFetcherFunc(func(ctx context.Context, cursor string) (*Page, error) {
		calls++
		return &Page{Records: []json.RawMessage{json.RawMessage(`{}`)}, Offset: fmt.Sprintf("c%d", calls)}, nil
	})
	agg := NewAggregator(Config{MaxPages: 4})

	records, err := agg.FetchAll(context.Background(), "payroll", endless)

	if !errors.Is(err, ErrPageLimitExceeded) {
		t.Fatalf("err = %v, want ErrPageLimitExceeded", err)
	}
	if records != nil {
		t.Error("records must be nil on abort")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestFetchAll_StaleCursor(t *testing.T) {
	calls := 0
	echo := PageFetcherFunc(func(ctx context.Context, cursor string) (*Page, error) {
		calls++
		return &Page{Offset: "same"}, nil
	})
	agg := NewAggregator(DefaultConfig())

	_, err := agg.FetchAll(context.Background(), "employees", echo)

	if !errors.Is(err, ErrStaleCursor) {
		t.Fatalf("err = %v, want ErrStaleCursor", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fetcher := PageFetcherFunc(func(ctx context.Context, cursor string) (*Page, error) {
		calls++
		cancel()
		return &Page{Offset: fmt.Sprintf("c%d", calls)}, nil
	})

	_, err := NewAggregator(DefaultConfig()).FetchAll(ctx, "employees", fetcher)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator(Config{})
	if agg.config.MaxPages != DefaultConfig().MaxPages {
		t.Errorf("MaxPages = %d, want default", agg.config.MaxPages)
	}
}
