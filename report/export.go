package report

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/workhours/overtime/metrics"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/spreadsheet"
)

// ExportStore is what the exporter reads.
type ExportStore interface {
	GetOrganization(ctx context.Context, key string) (*overtime.Organization, error)
	GetUser(ctx context.Context, uid string) (*overtime.User, error)
}

// EventChange is one committed write to an event. Before is nil on create
// and After is nil on delete.
type EventChange struct {
	Organization string
	UID          string
	EventID      string
	Before       *overtime.Event
	After        *overtime.Event
}

func (c EventChange) op() string {
	switch {
	case c.Before == nil:
		return "create"
	case c.After == nil:
		return "delete"
	default:
		return "update"
	}
}

// Exporter mirrors event changes into the per-user sheet, titled with the
// user's email, of the organization's spreadsheet.
type Exporter struct {
	store  ExportStore
	svc    spreadsheet.Service
	logger *log.Logger
}

func NewExporter(store ExportStore, svc spreadsheet.Service, logger *log.Logger) *Exporter {
	return &Exporter{store: store, svc: svc, logger: logger.WithPrefix("export")}
}

// HandleChange applies one change. Organizations without a spreadsheet are
// skipped. Update of an event whose row is missing appends it; delete of a
// missing row is a no-op.
func (x *Exporter) HandleChange(ctx context.Context, c EventChange) error {
	op := c.op()
	logger := x.logger.With("org", c.Organization, "user", c.UID, "event", c.EventID, "op", op)

	err := x.apply(ctx, c, logger)
	result := "ok"
	switch {
	case err == nil:
	case overtime.KindOf(err) == overtime.KindNoSpreadsheetID:
		result, err = "skipped", nil
	default:
		result = "error"
		logger.Error("export failed", "err", err)
	}
	metrics.ExportOperations.WithLabelValues(op, result).Inc()
	return err
}

func (x *Exporter) apply(ctx context.Context, c EventChange, logger *log.Logger) error {
	if c.Before == nil && c.After == nil {
		return overtime.NewError(overtime.KindNoParams, c.Organization, c.EventID, nil)
	}
	org, err := x.store.GetOrganization(ctx, c.Organization)
	if err != nil {
		return overtime.NewError(overtime.KindUnknown, c.Organization, "", err)
	}
	if org == nil {
		return overtime.NewError(overtime.KindNoOrganization, c.Organization, "", nil)
	}
	if !org.HasSpreadsheet() {
		return overtime.NewError(overtime.KindNoSpreadsheetID, org.Key, "", nil)
	}
	user, err := x.store.GetUser(ctx, c.UID)
	if err != nil {
		return overtime.NewError(overtime.KindUnknown, org.Key, c.UID, err)
	}
	if user == nil {
		return overtime.NewError(overtime.KindNoUser, org.Key, c.UID, nil)
	}

	sheet, err := spreadsheet.OpenUserSheet(ctx, x.svc, org.SpreadsheetID, user.Email)
	if err != nil {
		return sheetError(org.Key, org.SpreadsheetID, err)
	}

	if c.Before == nil {
		logger.Debug("adding event row")
		if err := sheet.Append(ctx, exportRow(c.EventID, c.After)); err != nil {
			return sheetError(org.Key, org.SpreadsheetID, err)
		}
		return nil
	}

	rowNum, err := sheet.LocateRow(ctx, c.EventID)
	if err != nil {
		return sheetError(org.Key, org.SpreadsheetID, err)
	}

	if c.After == nil {
		if rowNum == 0 {
			logger.Warn("deleted event has no row")
			return nil
		}
		logger.Debug("deleting event row", "row", rowNum)
		if err := sheet.DeleteRow(ctx, rowNum); err != nil {
			return sheetError(org.Key, org.SpreadsheetID, err)
		}
		return nil
	}

	row := exportRow(c.EventID, c.After)
	if rowNum == 0 {
		logger.Info("updated event has no row, appending")
		err = sheet.Append(ctx, row)
	} else {
		logger.Debug("updating event row", "row", rowNum)
		err = sheet.UpdateRow(ctx, rowNum, row)
	}
	if err != nil {
		return sheetError(org.Key, org.SpreadsheetID, err)
	}
	return nil
}

func exportRow(id string, e *overtime.Event) spreadsheet.Row {
	return spreadsheet.Row{
		ID:       id,
		Date:     e.Date.String(),
		Hours:    e.Hours.InexactFloat64(),
		Reason:   e.Reason,
		WorkDone: e.WorkDone,
	}
}
