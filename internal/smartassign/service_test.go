package smartassign

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
)

type fakeDirectory struct {
	writers []models.Writer
}

func (f *fakeDirectory) ListAll(ctx context.Context) ([]models.Writer, error) {
	return f.writers, nil
}

type fakeHistory struct {
	byTitle map[string][]uuid.UUID
}

func (f *fakeHistory) WritersForTitle(ctx context.Context, normalizedTitle string) ([]uuid.UUID, error) {
	return f.byTitle[normalizedTitle], nil
}

func strPtr(s string) *string { return &s }

func newMatcher(t *testing.T, writers []models.Writer, history map[string][]uuid.UUID) Service {
	t.Helper()
	if history == nil {
		history = map[string][]uuid.UUID{}
	}
	svc, err := NewService(&fakeDirectory{writers: writers}, &fakeHistory{byTitle: history})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestMatchExactIPIAutoAssigns(t *testing.T) {
	writer := models.Writer{
		ID:              uuid.New(),
		FirstName:       "Dana",
		LastName:        "Reyes",
		WriterIPINumber: strPtr("00123456789"),
	}
	svc := newMatcher(t, []models.Writer{writer}, nil)

	rows := []models.StatementRow{{
		ID:        uuid.New(),
		WorkTitle: "Evening Glass",
		WriterIPI: strPtr("00123456789"),
	}}

	result, err := svc.Match(context.Background(), &models.Statement{ID: uuid.New()}, rows)
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if len(result.AutoAssigned) != 1 {
		t.Fatalf("expected 1 auto-assigned row, got %d", len(result.AutoAssigned))
	}
	match := result.AutoAssigned[0]
	if match.Candidates[0].Score != ScoreExactIPI {
		t.Fatalf("expected score 100, got %d", match.Candidates[0].Score)
	}
	if match.Candidates[0].WriterIPI != "00123456789" {
		t.Fatalf("auto-assigned candidate must carry the matching IPI")
	}
	if len(match.Splits) != 1 || !match.Splits[0].SplitPercentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected a single 100%% split, got %+v", match.Splits)
	}
}

func TestMatchHistoryScoresSuggestedTopCandidateOnly(t *testing.T) {
	writer := models.Writer{ID: uuid.New(), FirstName: "Omar", LastName: "Bell"}
	history := map[string][]uuid.UUID{"midnight dreams": {writer.ID}}
	svc := newMatcher(t, []models.Writer{writer}, history)

	rows := []models.StatementRow{{ID: uuid.New(), WorkTitle: "Midnight  Dreams"}}

	result, err := svc.Match(context.Background(), &models.Statement{ID: uuid.New()}, rows)
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	// History scores exactly 90, which clears the auto threshold.
	if len(result.AutoAssigned) != 1 {
		t.Fatalf("expected history match to auto-assign, got %+v", result)
	}
	if result.AutoAssigned[0].Candidates[0].Score != ScoreHistory {
		t.Fatalf("expected score 90, got %d", result.AutoAssigned[0].Candidates[0].Score)
	}
}

func TestMatchFuzzyNameLandsInSuggested(t *testing.T) {
	writer := models.Writer{ID: uuid.New(), FirstName: "Katherine", LastName: "Moss"}
	svc := newMatcher(t, []models.Writer{writer}, nil)

	rows := []models.StatementRow{{
		ID:         uuid.New(),
		WorkTitle:  "Harbor Lights",
		WriterName: strPtr("Katherine Mosse"),
	}}

	result, err := svc.Match(context.Background(), &models.Statement{ID: uuid.New()}, rows)
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if len(result.Suggested) != 1 {
		t.Fatalf("expected 1 suggested row, got %+v", result)
	}
	match := result.Suggested[0]
	if len(match.Candidates) != 1 {
		t.Fatalf("suggested rows carry only the top candidate, got %d", len(match.Candidates))
	}
	score := match.Candidates[0].Score
	if score < SuggestThreshold || score > MaxFuzzyScore {
		t.Fatalf("fuzzy score %d outside suggested band", score)
	}
}

func TestMatchNoCandidateIsUnmatched(t *testing.T) {
	writer := models.Writer{ID: uuid.New(), FirstName: "Priya", LastName: "Anand"}
	svc := newMatcher(t, []models.Writer{writer}, nil)

	rows := []models.StatementRow{{ID: uuid.New(), WorkTitle: "Midnight Dreams"}}

	result, err := svc.Match(context.Background(), &models.Statement{ID: uuid.New()}, rows)
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if len(result.Unmatched) != 1 {
		t.Fatalf("row with no embedded metadata must be unmatched, got %+v", result)
	}
}

func TestEqualSplitsRemainderGoesToFirst(t *testing.T) {
	shares := EqualSplits(3)
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}
	if !shares[0].Equal(decimal.RequireFromString("33.34")) {
		t.Fatalf("first share should absorb the remainder, got %s", shares[0])
	}
	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("shares must sum to exactly 100, got %s", total)
	}
}

func TestTier(t *testing.T) {
	if Tier(100) != TierAuto || Tier(90) != TierAuto {
		t.Fatal("scores >= 90 are auto")
	}
	if Tier(89) != TierSuggested || Tier(70) != TierSuggested {
		t.Fatal("scores 70-89 are suggested")
	}
	if Tier(69) != TierUnmatched || Tier(0) != TierUnmatched {
		t.Fatal("scores < 70 are unmatched")
	}
}
