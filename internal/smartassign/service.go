package smartassign

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
)

// Confidence thresholds for the match tiers.
const (
	ScoreExactIPI    = 100
	ScoreHistory     = 90
	MaxFuzzyScore    = 89
	AutoThreshold    = 90
	SuggestThreshold = 70
)

// Tier names derived from a match score.
const (
	TierAuto      = "auto"
	TierSuggested = "suggested"
	TierUnmatched = "unmatched"
)

// WriterDirectory is the slice of the writer store the matcher reads.
type WriterDirectory interface {
	ListAll(ctx context.Context) ([]models.Writer, error)
}

// History looks up which writers were previously assigned a work title.
type History interface {
	WritersForTitle(ctx context.Context, normalizedTitle string) ([]uuid.UUID, error)
}

// Candidate is one scored writer for a row.
type Candidate struct {
	WriterID  uuid.UUID
	Score     int
	Reason    string
	WriterIPI string
}

// ProposedSplit is a staged split the caller may accept, edit, or discard.
type ProposedSplit struct {
	WriterID        uuid.UUID
	WriterIPI       string
	SplitPercentage decimal.Decimal
}

// RowMatch carries the scored outcome for one statement row.
type RowMatch struct {
	RowID      uuid.UUID
	Candidates []Candidate
	Splits     []ProposedSplit
}

// Result buckets rows by confidence tier. Nothing here is persisted; the
// assignment ledger stages whatever the operator accepts.
type Result struct {
	AutoAssigned []RowMatch
	Suggested    []RowMatch
	Unmatched    []RowMatch
}

// Service proposes writer assignments for statement rows.
type Service interface {
	Match(ctx context.Context, statement *models.Statement, rows []models.StatementRow) (*Result, error)
}

type service struct {
	directory WriterDirectory
	history   History
}

// NewService wires the matcher with its writer directory and assignment history.
func NewService(directory WriterDirectory, history History) (Service, error) {
	if directory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "writer directory required")
	}
	if history == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "assignment history required")
	}
	return &service{directory: directory, history: history}, nil
}

// Match scores every row against the writer directory. It is read-only: the
// result is a staged proposal, never a persisted assignment.
func (s *service) Match(ctx context.Context, statement *models.Statement, rows []models.StatementRow) (*Result, error) {
	if statement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "statement is required")
	}

	writers, err := s.directory.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, row := range rows {
		match, err := s.matchRow(ctx, row, writers)
		if err != nil {
			return nil, err
		}
		switch {
		case len(match.Candidates) == 0:
			result.Unmatched = append(result.Unmatched, match)
		case match.Candidates[0].Score >= AutoThreshold:
			match.Splits = autoSplits(match)
			result.AutoAssigned = append(result.AutoAssigned, match)
		case match.Candidates[0].Score >= SuggestThreshold:
			// Suggested rows carry only the top candidate; the caller
			// applies it at 100% but leaves it editable.
			match.Candidates = match.Candidates[:1]
			result.Suggested = append(result.Suggested, match)
		default:
			result.Unmatched = append(result.Unmatched, match)
		}
	}
	return result, nil
}

func (s *service) matchRow(ctx context.Context, row models.StatementRow, writers []models.Writer) (RowMatch, error) {
	match := RowMatch{RowID: row.ID}

	historical, err := s.history.WritersForTitle(ctx, NormalizeTitle(row.WorkTitle))
	if err != nil {
		return match, err
	}
	priorWriters := make(map[uuid.UUID]bool, len(historical))
	for _, id := range historical {
		priorWriters[id] = true
	}

	for _, writer := range writers {
		candidate := scoreWriter(row, writer, priorWriters[writer.ID])
		if candidate == nil {
			continue
		}
		match.Candidates = append(match.Candidates, *candidate)
	}

	sort.SliceStable(match.Candidates, func(i, j int) bool {
		return match.Candidates[i].Score > match.Candidates[j].Score
	})
	return match, nil
}

// scoreWriter applies the match rules in priority order: exact IPI, prior
// assignment history, then fuzzy name similarity.
func scoreWriter(row models.StatementRow, writer models.Writer, hasHistory bool) *Candidate {
	ipi := ""
	if writer.WriterIPINumber != nil {
		ipi = strings.TrimSpace(*writer.WriterIPINumber)
	}

	if row.WriterIPI != nil && ipi != "" && strings.TrimSpace(*row.WriterIPI) == ipi {
		return &Candidate{WriterID: writer.ID, Score: ScoreExactIPI, Reason: "exact IPI match", WriterIPI: ipi}
	}

	if hasHistory {
		return &Candidate{WriterID: writer.ID, Score: ScoreHistory, Reason: "prior assignment of this work", WriterIPI: ipi}
	}

	score := fuzzyNameScore(row, writer)
	if score <= 0 {
		return nil
	}
	return &Candidate{WriterID: writer.ID, Score: score, Reason: "name similarity", WriterIPI: ipi}
}

func fuzzyNameScore(row models.StatementRow, writer models.Writer) int {
	names := collectRowNames(row)
	if len(names) == 0 {
		return 0
	}

	target := normalizeName(writer.FullName())
	if target == "" {
		return 0
	}

	best := 0
	for _, name := range names {
		if score := similarity(normalizeName(name), target); score > best {
			best = score
		}
	}
	if best > MaxFuzzyScore {
		best = MaxFuzzyScore
	}
	return best
}

func collectRowNames(row models.StatementRow) []string {
	var names []string
	if row.WriterName != nil && strings.TrimSpace(*row.WriterName) != "" {
		names = append(names, *row.WriterName)
	}
	for _, collaborator := range row.Collaborators {
		if strings.TrimSpace(collaborator) != "" {
			names = append(names, collaborator)
		}
	}
	return names
}

// similarity converts a Levenshtein distance into a 0-100 score.
func similarity(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	distance := levenshtein.ComputeDistance(a, b)
	if distance >= longest {
		return 0
	}
	return int(float64(longest-distance) / float64(longest) * 100)
}

// autoSplits distributes 100% equally across every qualifying candidate, with
// the rounding remainder absorbed by the first so the sum stays exact.
func autoSplits(match RowMatch) []ProposedSplit {
	var qualifying []Candidate
	for _, candidate := range match.Candidates {
		if candidate.Score >= AutoThreshold {
			qualifying = append(qualifying, candidate)
		}
	}
	if len(qualifying) == 0 {
		return nil
	}

	shares := EqualSplits(len(qualifying))
	splits := make([]ProposedSplit, len(qualifying))
	for i, candidate := range qualifying {
		splits[i] = ProposedSplit{
			WriterID:        candidate.WriterID,
			WriterIPI:       candidate.WriterIPI,
			SplitPercentage: shares[i],
		}
	}
	return splits
}

// EqualSplits returns n percentages that sum to exactly 100. Each share is
// 100/n rounded to 2 decimals; the remainder lands on the first share.
func EqualSplits(n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	hundred := decimal.NewFromInt(100)
	base := hundred.Div(decimal.NewFromInt(int64(n))).Round(2)

	shares := make([]decimal.Decimal, n)
	total := decimal.Zero
	for i := 1; i < n; i++ {
		shares[i] = base
		total = total.Add(base)
	}
	shares[0] = hundred.Sub(total)
	return shares
}

// Tier maps a match score onto its confidence tier. Derived on demand, never
// stored.
func Tier(score int) string {
	switch {
	case score >= AutoThreshold:
		return TierAuto
	case score >= SuggestThreshold:
		return TierSuggested
	default:
		return TierUnmatched
	}
}

// NormalizeTitle lowercases and collapses whitespace so title comparisons are
// stable across statements.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
