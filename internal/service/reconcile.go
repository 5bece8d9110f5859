package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/laundrix/api/internal/audit"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/notify"
	"golang.org/x/time/rate"
)

const (
	defaultSyncLimit    = 50
	maxSyncLimit        = 500
	defaultCleanupBatch = 100
	maxCleanupBatch     = 1000
)

// MapGatewayStatus translates a Tap charge or invoice status into a payment
// status. Unrecognised values stay PENDING.
func MapGatewayStatus(status string) database.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CAPTURED", "CLOSED", "PAID":
		return database.PaymentStatusPAID
	case "CANCELLED", "EXPIRED", "DECLINED", "VOID", "FAILED",
		"ABANDONED", "RESTRICTED", "TIMEDOUT", "UNKNOWN":
		return database.PaymentStatusFAILED
	default:
		return database.PaymentStatusPENDING
	}
}

// settledStatus reports whether sync must leave the record alone.
func settledStatus(s database.PaymentStatus) bool {
	return s == database.PaymentStatusPAID || s == database.PaymentStatusREFUNDED || s == database.PaymentStatusPARTIALREFUND
}

// ReconcileService brings gateway-backed payment records in line with the
// gateway.
type ReconcileService struct {
	paymentCore
	limiter *rate.Limiter
}

// NewReconcileService creates a ReconcileService. limiter may be nil.
func NewReconcileService(db DB, newStore NewPaymentStore, gw Gateway, hook PaymentSettledHook, limiter *rate.Limiter, notifier notify.Notifier, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		paymentCore: newPaymentCore(db, newStore, gw, hook, notifier, logger),
		limiter:     limiter,
	}
}

// SyncResult is the outcome of syncing one payment record.
type SyncResult struct {
	PaymentID          uuid.UUID                   `json:"payment_id"`
	PreviousStatus     database.PaymentStatus      `json:"previous_status"`
	GatewayStatus      string                      `json:"gateway_status"`
	MappedStatus       database.PaymentStatus      `json:"mapped_status"`
	Updated            bool                        `json:"updated"`
	Mismatch           bool                        `json:"mismatch"`
	OrderPaymentStatus database.OrderPaymentStatus `json:"order_payment_status,omitempty"`
}

type gatewayState struct {
	Status        string
	TransactionID string
}

func (s *ReconcileService) fetch(ctx context.Context, rec database.PaymentRecord) (gatewayState, error) {
	ref := rec.TapReference.String
	switch rec.PaymentMethod {
	case database.PaymentMethodTAPCHARGE:
		ch, err := s.gateway.GetCharge(ctx, ref)
		if err != nil {
			return gatewayState{}, err
		}
		return gatewayState{Status: ch.Status, TransactionID: ch.TransactionID()}, nil
	case database.PaymentMethodTAPINVOICE:
		inv, err := s.gateway.GetInvoice(ctx, ref)
		if err != nil {
			return gatewayState{}, err
		}
		return gatewayState{Status: inv.Status, TransactionID: inv.TransactionID()}, nil
	}
	return gatewayState{}, ErrNotGatewayPayment
}

// SyncSinglePaymentStatus fetches the gateway's view of one record and
// applies it. Applying the same gateway state twice changes nothing the
// second time. Settled records are never downgraded; the disagreement is
// reported as a mismatch instead.
func (s *ReconcileService) SyncSinglePaymentStatus(ctx context.Context, paymentID uuid.UUID) (*SyncResult, error) {
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	rec, err := s.getPayment(ctx, s.newStore(s.db), paymentID)
	if err != nil {
		return nil, err
	}
	if !isGatewayMethod(rec.PaymentMethod) {
		return nil, ErrNotGatewayPayment
	}
	if !rec.TapReference.Valid || rec.TapReference.String == "" {
		return nil, ErrNoGatewayReference
	}

	state, err := s.fetch(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrGateway, rec.TapReference.String, err)
	}

	res := &SyncResult{
		PaymentID:      rec.ID,
		PreviousStatus: rec.PaymentStatus,
		GatewayStatus:  state.Status,
		MappedStatus:   MapGatewayStatus(state.Status),
	}
	if res.MappedStatus == rec.PaymentStatus {
		return res, nil
	}
	res.Mismatch = true
	if settledStatus(rec.PaymentStatus) {
		s.events.logger.Warn("gateway disagrees with settled payment",
			"payment_id", rec.ID,
			"stored", rec.PaymentStatus,
			"gateway_status", state.Status,
		)
		return res, nil
	}
	if res.MappedStatus == database.PaymentStatusPENDING {
		return res, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rec, err = lockPayment(ctx, store, paymentID)
	if err != nil {
		return nil, err
	}
	// Another writer may have settled the record since the first read.
	res.PreviousStatus = rec.PaymentStatus
	if rec.PaymentStatus == res.MappedStatus {
		res.Mismatch = false
		return res, nil
	}
	if settledStatus(rec.PaymentStatus) {
		return res, nil
	}

	ch, err := applyStatusChange(ctx, store, rec, statusChange{
		Status:        res.MappedStatus,
		TransactionID: state.TransactionID,
		Entry: audit.Entry{
			Kind:          audit.KindGatewaySync,
			GatewayStatus: state.Status,
			Reference:     rec.TapReference.String,
			TransactionID: state.TransactionID,
		},
		By:     systemActor,
		Reason: "gateway sync: " + state.Status,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	res.Updated = true
	if ch.Order != nil {
		res.OrderPaymentStatus = ch.Order.Order.PaymentStatus
	}
	s.events.logger.Info("payment status synced",
		"payment_id", rec.ID,
		"from", rec.PaymentStatus,
		"to", res.MappedStatus,
		"gateway_status", state.Status,
	)
	s.afterCommit(ctx, ch)
	return res, nil
}

// HandleGatewayWebhook syncs the record a webhook refers to. The webhook body
// is only used to find the record; the status is re-read from the gateway.
// Unknown references return a nil result and no error.
func (s *ReconcileService) HandleGatewayWebhook(ctx context.Context, ev *gateway.WebhookEvent) (*SyncResult, error) {
	rec, err := s.newStore(s.db).GetPaymentRecordByTapReference(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.events.logger.Info("webhook for unknown reference ignored", "reference", ev.ID, "object", ev.Object)
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return s.SyncSinglePaymentStatus(ctx, rec.ID)
}

// SyncFilter selects the records a batch sync visits.
type SyncFilter struct {
	Methods []database.PaymentMethod
	Status  database.PaymentStatus
	Limit   int32
	Offset  int32
}

// SyncError is one failed record in a batch.
type SyncError struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Error     string    `json:"error"`
}

// SyncReport summarizes a batch sync.
type SyncReport struct {
	TotalChecked     int          `json:"total_checked"`
	StatusMismatches int          `json:"status_mismatches"`
	Updated          int          `json:"updated"`
	Errors           []SyncError  `json:"errors"`
	Results          []SyncResult `json:"results,omitempty"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}

// SyncPaymentStatuses syncs a page of gateway-backed records. A failing
// record is reported and the batch continues.
func (s *ReconcileService) SyncPaymentStatuses(ctx context.Context, f SyncFilter) (*SyncReport, error) {
	report := &SyncReport{StartedAt: time.Now().UTC(), Errors: []SyncError{}}

	methods := make([]string, 0, 2)
	for _, m := range f.Methods {
		if !isGatewayMethod(m) {
			return nil, fmt.Errorf("%w: %s", ErrNotGatewayPayment, m)
		}
		methods = append(methods, string(m))
	}
	if len(methods) == 0 {
		methods = append(methods, string(database.PaymentMethodTAPCHARGE), string(database.PaymentMethodTAPINVOICE))
	}
	status := f.Status
	if status == "" {
		status = database.PaymentStatusPENDING
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	records, err := s.newStore(s.db).ListPaymentRecordsForSync(ctx, database.ListPaymentRecordsForSyncParams{
		PaymentStatus: status,
		Methods:       methods,
		Limit:         clampLimit(f.Limit, defaultSyncLimit, maxSyncLimit),
		Offset:        f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments for sync: %w", err)
	}

	for _, rec := range records {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				report.FinishedAt = time.Now().UTC()
				return report, err
			}
		}
		report.TotalChecked++
		res, err := s.SyncSinglePaymentStatus(ctx, rec.ID)
		if err != nil {
			report.Errors = append(report.Errors, SyncError{PaymentID: rec.ID, Error: err.Error()})
			s.events.logger.Warn("payment sync failed", "payment_id", rec.ID, "error", err)
			continue
		}
		if res.Mismatch {
			report.StatusMismatches++
		}
		if res.Updated {
			report.Updated++
		}
		report.Results = append(report.Results, *res)
	}

	report.FinishedAt = time.Now().UTC()
	s.events.logger.Info("payment sync finished",
		"checked", report.TotalChecked,
		"mismatches", report.StatusMismatches,
		"updated", report.Updated,
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// CleanupOptions controls a metadata cleanup run. MaxRecords of zero scans
// everything.
type CleanupOptions struct {
	BatchSize  int32
	DryRun     bool
	MaxRecords int
}

// CleanupFix is one record whose gateway ids can be recovered.
type CleanupFix struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	Reference     string    `json:"tap_reference,omitempty"`
	TransactionID string    `json:"tap_transaction_id,omitempty"`
	Applied       bool      `json:"applied"`
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DryRun  bool         `json:"dry_run"`
	Scanned int          `json:"scanned"`
	Fixable int          `json:"fixable"`
	Fixed   int          `json:"fixed"`
	Fixes   []CleanupFix `json:"fixes"`
	Errors  []SyncError  `json:"errors"`
}

// CleanupPaymentData copies gateway ids found in legacy metadata into the
// tap_reference and tap_transaction_id columns where those are empty.
func (s *ReconcileService) CleanupPaymentData(ctx context.Context, opts CleanupOptions) (*CleanupReport, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	if batch > maxCleanupBatch {
		batch = maxCleanupBatch
	}
	report := &CleanupReport{DryRun: opts.DryRun, Fixes: []CleanupFix{}, Errors: []SyncError{}}

	reader := s.newStore(s.db)
	after := uuid.Nil
	for {
		if opts.MaxRecords > 0 && report.Scanned >= opts.MaxRecords {
			break
		}
		page, err := reader.ListPaymentRecordsMissingGatewayIDs(ctx, database.ListPaymentRecordsMissingGatewayIDsParams{
			AfterID: after,
			Limit:   batch,
		})
		if err != nil {
			return report, fmt.Errorf("list payments missing gateway ids: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			if opts.MaxRecords > 0 && report.Scanned >= opts.MaxRecords {
				break
			}
			after = rec.ID
			report.Scanned++

			fix, ok := cleanupCandidate(rec)
			if !ok {
				continue
			}
			report.Fixable++
			if !opts.DryRun {
				if err := s.applyCleanup(ctx, rec.ID, fix); err != nil {
					report.Errors = append(report.Errors, SyncError{PaymentID: rec.ID, Error: err.Error()})
					s.events.logger.Warn("payment cleanup failed", "payment_id", rec.ID, "error", err)
					report.Fixes = append(report.Fixes, fix)
					continue
				}
				fix.Applied = true
				report.Fixed++
			}
			report.Fixes = append(report.Fixes, fix)
		}
		if int32(len(page)) < batch {
			break
		}
	}

	s.events.logger.Info("payment cleanup finished",
		"dry_run", opts.DryRun,
		"scanned", report.Scanned,
		"fixable", report.Fixable,
		"fixed", report.Fixed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// cleanupCandidate returns the ids the record is missing and its metadata
// can supply.
func cleanupCandidate(rec database.PaymentRecord) (CleanupFix, bool) {
	ref, txn := audit.ExtractGatewayIDs(rec.Metadata)
	fix := CleanupFix{PaymentID: rec.ID}
	if !rec.TapReference.Valid && ref != "" {
		fix.Reference = ref
	}
	if !rec.TapTransactionID.Valid && txn != "" {
		fix.TransactionID = txn
	}
	return fix, fix.Reference != "" || fix.TransactionID != ""
}

func (s *ReconcileService) applyCleanup(ctx context.Context, id uuid.UUID, fix CleanupFix) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rec, err := lockPayment(ctx, store, id)
	if err != nil {
		return err
	}
	n, err := store.FillPaymentGatewayIDs(ctx, database.FillPaymentGatewayIDsParams{
		ID:               id,
		TapReference:     database.Text(fix.Reference),
		TapTransactionID: database.Text(fix.TransactionID),
	})
	if err != nil {
		return fmt.Errorf("fill gateway ids: %w", err)
	}
	if n == 0 {
		return ErrPaymentNotFound
	}
	metadata, err := audit.Append(rec.Metadata, audit.Entry{
		Kind:          audit.KindDataCleanup,
		Reference:     fix.Reference,
		TransactionID: fix.TransactionID,
	})
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if _, err := store.UpdatePaymentRecordMetadata(ctx, database.UpdatePaymentRecordMetadataParams{ID: id, Metadata: metadata}); err != nil {
		return fmt.Errorf("update payment metadata: %w", err)
	}
	return tx.Commit(ctx)
}
