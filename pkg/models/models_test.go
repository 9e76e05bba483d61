package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// ── Article ──

func TestArticleDedupKeyIsTitle(t *testing.T) {
	a := Article{ID: "newsdata-1", Title: "Same"}
	b := Article{ID: "bbc-2", Title: "Same"}
	if a.DedupKey() != b.DedupKey() {
		t.Fatalf("articles with equal titles must share a dedup key: %q vs %q", a.DedupKey(), b.DedupKey())
	}
}

func TestArticleEqualComparesInstant(t *testing.T) {
	ts := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	a := Article{ID: "1", Title: "T", URL: "u", Source: "s", PublishedAt: ts}
	b := a
	b.PublishedAt = ts.In(time.FixedZone("X", 3600))
	if !a.Equal(b) {
		t.Fatal("same instant in different zones should be equal")
	}
	b.Content = "changed"
	if a.Equal(b) {
		t.Fatal("different content should not be equal")
	}
}

func TestArticleBody(t *testing.T) {
	tests := []struct {
		name string
		a    Article
		want string
	}{
		{"content wins", Article{Content: "c", Description: "d"}, "c"},
		{"description fallback", Article{Description: "d"}, "d"},
		{"placeholder", Article{}, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Body("none"); got != tt.want {
				t.Errorf("Body() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ── TimeFrame / Style ──

func TestTimeFrameOffsets(t *testing.T) {
	day := 24 * time.Hour
	want := map[TimeFrame]time.Duration{
		TimeFrameDay:   day,
		TimeFrameWeek:  7 * day,
		TimeFrameMonth: 30 * day,
		TimeFrameYear:  365 * day,
	}
	for tf, d := range want {
		if got := tf.Offset(); got != d {
			t.Errorf("%s.Offset() = %v, want %v", tf, got, d)
		}
	}
	if TimeFrame("decade").Valid() {
		t.Error("unknown time frame should be invalid")
	}
}

func TestStyleTones(t *testing.T) {
	for _, s := range []Style{StyleNeutral, StyleOptimistic, StylePessimistic, StyleSensational, StyleAnalytical} {
		if !s.Valid() || s.Tone() == "" {
			t.Errorf("style %q should have a tone", s)
		}
	}
	if StyleNeutral.Tone() != "balanced and factual" {
		t.Errorf("neutral tone: got %q", StyleNeutral.Tone())
	}
	if Style("grumpy").Valid() {
		t.Error("unknown style should be invalid")
	}
}

// ── GenerationRequest ──

func TestGenerationRequestNormalize(t *testing.T) {
	r := GenerationRequest{}.Normalize()
	if r.TimeFrame != TimeFrameWeek || r.Style != StyleNeutral || r.ContextSize != DefaultContextSize {
		t.Fatalf("unexpected defaults: %+v", r)
	}
	r = GenerationRequest{TimeFrame: TimeFrameYear, ContextSize: 3}.Normalize()
	if r.TimeFrame != TimeFrameYear || r.ContextSize != 3 {
		t.Fatalf("explicit values overwritten: %+v", r)
	}
}

func TestGenerationRequestContextSizeDecoding(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"omitted", `{"style":"neutral"}`, DefaultContextSize, false},
		{"null", `{"context_size":null}`, DefaultContextSize, false},
		{"explicit", `{"context_size":7}`, 7, false},
		{"explicit zero", `{"context_size":0}`, 0, true},
		{"negative", `{"context_size":-3}`, -3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r GenerationRequest
			if err := json.Unmarshal([]byte(tt.body), &r); err != nil {
				t.Fatal(err)
			}
			r = r.Normalize()
			if r.ContextSize != tt.want {
				t.Errorf("ContextSize = %d, want %d", r.ContextSize, tt.want)
			}
			if err := r.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerationRequestSetContextSizeZero(t *testing.T) {
	var r GenerationRequest
	r.SetContextSize(0)
	if err := r.Normalize().Validate(); err == nil || !strings.Contains(err.Error(), "context_size") {
		t.Fatalf("explicit zero should be rejected, got %v", err)
	}
	r.SetContextSize(4)
	if got := r.Normalize(); got.ContextSize != 4 || got.Validate() != nil {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     GenerationRequest
		wantErr string
	}{
		{"ok", GenerationRequest{}.Normalize(), ""},
		{"bad time frame", GenerationRequest{TimeFrame: "decade", Style: StyleNeutral, ContextSize: 1}, "time_frame"},
		{"bad style", GenerationRequest{TimeFrame: TimeFrameDay, Style: "grumpy", ContextSize: 1}, "style"},
		{"too small", GenerationRequest{TimeFrame: TimeFrameDay, Style: StyleNeutral, ContextSize: -1}, "context_size"},
		{"too large", GenerationRequest{TimeFrame: TimeFrameDay, Style: StyleNeutral, ContextSize: 51}, "context_size"},
		{"upper bound", GenerationRequest{TimeFrame: TimeFrameDay, Style: StyleNeutral, ContextSize: 50}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
