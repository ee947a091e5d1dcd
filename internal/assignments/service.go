package assignments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
)

// MsgStatementNotUploaded is carried when a commit races another commit or
// targets a statement that already left the UPLOADED state.
const MsgStatementNotUploaded = "statement is not in uploaded state"

// StatementTransitioner is the slice of the statement store the commit needs:
// a compare-and-swap on the statement status inside the commit transaction.
type StatementTransitioner interface {
	TransitionStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to enums.StatementStatus) (bool, error)
}

// Service persists staged assignment ledgers.
type Service interface {
	Commit(ctx context.Context, ledger *Ledger) ([]Warning, error)
	ListByStatement(ctx context.Context, statementID uuid.UUID) ([]StoredAssignment, error)
}

// StoredAssignment is a read projection of one persisted assignment.
type StoredAssignment struct {
	ID                 uuid.UUID
	RowID              uuid.UUID
	WriterID           uuid.UUID
	WriterIPINumber    string
	PublisherIPINumber string
	SplitPercentage    string
}

type service struct {
	client     *db.Client
	repo       Repository
	statements StatementTransitioner
	logg       *logger.Logger
}

// NewService wires the assignment commit service.
func NewService(client *db.Client, repo Repository, statements StatementTransitioner, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "assignment repository required")
	}
	if statements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "statement transitioner required")
	}
	return &service{client: client, repo: repo, statements: statements, logg: logg}, nil
}

// Commit validates the ledger, atomically replaces the statement's persisted
// assignments with the staged map, and moves the statement from UPLOADED to
// PROCESSED. A concurrent commit loses the status race and gets a state
// conflict instead of overwriting.
func (s *service) Commit(ctx context.Context, ledger *Ledger) ([]Warning, error) {
	if ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger is required")
	}
	warnings, err := ledger.Validate()
	if err != nil {
		return warnings, err
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.statements.TransitionStatusTx(ctx, tx, ledger.statementID, enums.StatementStatusUploaded, enums.StatementStatusProcessed)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, MsgStatementNotUploaded)
		}
		return s.repo.WithTx(tx).ReplaceForStatement(ctx, ledger.statementID, ledger.Rows())
	})
	if err != nil {
		return warnings, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithStatementID(ctx, ledger.statementID.String())
		if len(warnings) > 0 {
			logCtx = s.logg.WithField(logCtx, "split_warnings", len(warnings))
		}
		s.logg.Info(logCtx, "assignments committed")
	}
	return warnings, nil
}

func (s *service) ListByStatement(ctx context.Context, statementID uuid.UUID) ([]StoredAssignment, error) {
	if statementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "statement id is required")
	}
	rows, err := s.repo.ListByStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	out := make([]StoredAssignment, len(rows))
	for i, row := range rows {
		out[i] = StoredAssignment{
			ID:                 row.ID,
			RowID:              row.RowID,
			WriterID:           row.WriterID,
			WriterIPINumber:    row.WriterIPINumber,
			PublisherIPINumber: row.PublisherIPINumber,
			SplitPercentage:    row.SplitPercentage.String(),
		}
	}
	return out, nil
}
