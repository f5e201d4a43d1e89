package telemetry

import (
	"context"
	"strings"
	"time"

	pkgerrors "github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"

	"github.com/sourcelane/negotiator-backend/internal/extraction"
)

const insertTimeout = 10 * time.Second

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Sink streams extraction usage records into BigQuery. Inserts run off the
// extraction path; failures are logged and dropped, usage telemetry never
// blocks or fails a negotiation.
type Sink struct {
	client tableInserter
	table  string
	logg   *logger.Logger
}

// NewSink builds a usage sink writing to the given table.
func NewSink(client tableInserter, table string, logg *logger.Logger) (*Sink, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage table name required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Sink{client: client, table: strings.TrimSpace(table), logg: logg}, nil
}

// RecordUsage inserts one usage row in the background and returns
// immediately.
func (s *Sink) RecordUsage(ctx context.Context, record extraction.UsageRecord) {
	row := &UsageRow{
		NegotiationID:    record.NegotiationID.String(),
		SupplierID:       record.SupplierID.String(),
		RoundNumber:      record.RoundNumber,
		PromptTokens:     record.Usage.PromptTokens,
		CompletionTokens: record.Usage.CompletionTokens,
		CostUSD:          record.Usage.CostUSD,
		Fallback:         record.Fallback,
		OccurredAt:       record.OccurredAt,
	}

	logCtx := s.logg.WithFields(context.WithoutCancel(ctx), map[string]any{
		"negotiation_id": record.NegotiationID,
		"supplier_id":    record.SupplierID,
		"round":          record.RoundNumber,
	})
	go func() {
		insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
		defer cancel()
		if err := s.client.InsertRows(insertCtx, s.table, []any{row}); err != nil {
			s.logg.Error(logCtx, "failed to insert usage row", err)
		}
	}()
}
