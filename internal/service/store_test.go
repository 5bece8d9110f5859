package service

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/laundrix/api/internal/audit"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/notify"
	"github.com/shopspring/decimal"
)

// --- Transaction fakes ---

// mockTx implements pgx.Tx. Rollback without a prior Commit restores the
// store snapshot taken at Begin. Unused methods panic so we catch
// accidental calls.
type mockTx struct {
	db        *memDB
	snapshot  memState
	committed bool
	commitErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	m.db.commits++
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if m.committed {
		return pgx.ErrTxClosed
	}
	m.db.store.restore(m.snapshot)
	m.committed = true
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// memDB implements DB over a memStore.
type memDB struct {
	store    *memStore
	beginErr error
	commits  int
}

func (m *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &mockTx{db: m, snapshot: m.store.snapshot()}, nil
}
func (m *memDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *memDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *memDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("not implemented")
}

// --- In-memory store ---

type memState struct {
	customers   map[uuid.UUID]database.Customer
	orders      map[uuid.UUID]database.Order
	history     []database.OrderHistory
	updates     []database.OrderUpdate
	assignments map[uuid.UUID]database.DriverAssignment
	photos      []database.OrderPhoto
	processing  map[uuid.UUID]database.OrderProcessing
	items       map[uuid.UUID]database.ProcessingItemDetail
	issues      map[uuid.UUID]database.IssueReport
	wallets     map[uuid.UUID]database.Wallet
	walletTxns  map[uuid.UUID]database.WalletTransaction
	payments    map[uuid.UUID]database.PaymentRecord
	orderSeq    int32
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	return memState{
		customers:   cloneMap(s.customers),
		orders:      cloneMap(s.orders),
		history:     slices.Clone(s.history),
		updates:     slices.Clone(s.updates),
		assignments: cloneMap(s.assignments),
		photos:      slices.Clone(s.photos),
		processing:  cloneMap(s.processing),
		items:       cloneMap(s.items),
		issues:      cloneMap(s.issues),
		wallets:     cloneMap(s.wallets),
		walletTxns:  cloneMap(s.walletTxns),
		payments:    cloneMap(s.payments),
		orderSeq:    s.orderSeq,
	}
}

// memStore implements OrderStore, WalletStore and PaymentStore over maps.
// failOn injects an error for the named method.
type memStore struct {
	mu     sync.Mutex
	state  memState
	clock  time.Time
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		state:  memState{}.clone(),
		clock:  time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		failOn: map[string]error{},
	}
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) restore(s memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// tick returns a strictly increasing timestamp so ordering by created_at is
// deterministic.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) fail(method string) error {
	return m.failOn[method]
}

func newTestDB() (*memDB, *memStore) {
	store := newMemStore()
	return &memDB{store: store}, store
}

func orderStoreFactory(s *memStore) NewOrderStore {
	return func(database.DBTX) OrderStore { return s }
}

func walletStoreFactory(s *memStore) NewWalletStore {
	return func(database.DBTX) WalletStore { return s }
}

func paymentStoreFactory(s *memStore) NewPaymentStore {
	return func(database.DBTX) PaymentStore { return s }
}

// Customers

func (m *memStore) GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.customers[id]
	if !ok {
		return database.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

// Orders

func (m *memStore) GetNextOrderNumber(ctx context.Context) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetNextOrderNumber"); err != nil {
		return 0, err
	}
	return m.state.orderSeq + 1, nil
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	for _, o := range m.state.orders {
		if o.OrderNumber == arg.OrderNumber {
			return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
		}
	}
	now := m.tick()
	o := database.Order{
		ID:                  uuid.New(),
		OrderNumber:         arg.OrderNumber,
		CustomerID:          arg.CustomerID,
		Status:              database.OrderStatusORDERPLACED,
		PaymentStatus:       database.OrderPaymentStatusPENDING,
		InvoiceTotal:        database.Numeric(decimal.Zero),
		PickupAddress:       arg.PickupAddress,
		PickupWindowStart:   arg.PickupWindowStart,
		PickupWindowEnd:     arg.PickupWindowEnd,
		DeliveryWindowStart: arg.DeliveryWindowStart,
		DeliveryWindowEnd:   arg.DeliveryWindowEnd,
		Notes:               arg.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	m.state.orders[o.ID] = o
	m.state.orderSeq++
	return o, nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Order
	for _, o := range m.state.orders {
		if arg.CustomerID.Valid && o.CustomerID != uuid.UUID(arg.CustomerID.Bytes) {
			continue
		}
		if arg.Status.Valid && string(o.Status) != arg.Status.String {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := effectiveAt(out[i]), effectiveAt(out[j])
		if !ei.Equal(ej) {
			return ei.After(ej)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, arg.Limit, arg.Offset), nil
}

func page[T any](in []T, limit, offset int32) []T {
	if int(offset) >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && int(limit) < len(in) {
		in = in[:limit]
	}
	return in
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[arg.ID]
	if !ok || o.Status != arg.ExpectedStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.FailureStage = arg.FailureStage
	if arg.PickedUpAt.Valid {
		o.PickedUpAt = arg.PickedUpAt
	}
	if arg.DeliveredAt.Valid {
		o.DeliveredAt = arg.DeliveredAt
	}
	o.UpdatedAt = m.tick()
	m.state.orders[o.ID] = o
	return o, nil
}

func (m *memStore) UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.PaymentStatus = arg.PaymentStatus
	m.state.orders[o.ID] = o
	return o, nil
}

func (m *memStore) UpdateOrderInvoiceTotal(ctx context.Context, arg database.UpdateOrderInvoiceTotalParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.InvoiceTotal = arg.InvoiceTotal
	m.state.orders[o.ID] = o
	return o, nil
}

// History

func (m *memStore) CreateOrderHistory(ctx context.Context, arg database.CreateOrderHistoryParams) (database.OrderHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateOrderHistory"); err != nil {
		return database.OrderHistory{}, err
	}
	h := database.OrderHistory{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		FromStatus: arg.FromStatus,
		ToStatus:   arg.ToStatus,
		Action:     arg.Action,
		ActorID:    arg.ActorID,
		ActorRole:  arg.ActorRole,
		Notes:      arg.Notes,
		CreatedAt:  m.tick(),
	}
	m.state.history = append(m.state.history, h)
	return h, nil
}

func (m *memStore) ListOrderHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.OrderHistory{}
	for _, h := range m.state.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) CreateOrderUpdate(ctx context.Context, arg database.CreateOrderUpdateParams) (database.OrderUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := database.OrderUpdate{
		ID:        uuid.New(),
		OrderID:   arg.OrderID,
		Field:     arg.Field,
		OldValue:  arg.OldValue,
		NewValue:  arg.NewValue,
		ActorID:   arg.ActorID,
		ActorRole: arg.ActorRole,
		Reason:    arg.Reason,
		CreatedAt: m.tick(),
	}
	m.state.updates = append(m.state.updates, u)
	return u, nil
}

func (m *memStore) ListOrderUpdates(ctx context.Context, orderID uuid.UUID) ([]database.OrderUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.OrderUpdate{}
	for _, u := range m.state.updates {
		if u.OrderID == orderID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Assignments

func openAssignment(s database.AssignmentStatus) bool {
	return s == database.AssignmentStatusASSIGNED || s == database.AssignmentStatusINPROGRESS
}

func (m *memStore) CreateDriverAssignment(ctx context.Context, arg database.CreateDriverAssignmentParams) (database.DriverAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	a := database.DriverAssignment{
		ID:             uuid.New(),
		OrderID:        arg.OrderID,
		DriverID:       arg.DriverID,
		AssignmentType: arg.AssignmentType,
		Status:         database.AssignmentStatusASSIGNED,
		ScheduledAt:    arg.ScheduledAt,
		Notes:          arg.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.state.assignments[a.ID] = a
	return a, nil
}

func (m *memStore) GetOpenAssignment(ctx context.Context, arg database.GetOpenAssignmentParams) (database.DriverAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *database.DriverAssignment
	for _, a := range m.state.assignments {
		if a.OrderID != arg.OrderID || a.AssignmentType != arg.AssignmentType || !openAssignment(a.Status) {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			found = &a
		}
	}
	if found == nil {
		return database.DriverAssignment{}, pgx.ErrNoRows
	}
	return *found, nil
}

func (m *memStore) UpdateAssignmentStatus(ctx context.Context, arg database.UpdateAssignmentStatusParams) (database.DriverAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.assignments[arg.ID]
	if !ok {
		return database.DriverAssignment{}, pgx.ErrNoRows
	}
	now := m.tick()
	a.Status = arg.Status
	switch arg.Status {
	case database.AssignmentStatusINPROGRESS:
		a.StartedAt = pgtype.Timestamptz{Time: now, Valid: true}
	case database.AssignmentStatusCOMPLETED, database.AssignmentStatusFAILED:
		a.CompletedAt = pgtype.Timestamptz{Time: now, Valid: true}
	}
	if arg.FailureReason.Valid {
		a.FailureReason = arg.FailureReason
	}
	a.UpdatedAt = now
	m.state.assignments[a.ID] = a
	return a, nil
}

func (m *memStore) CancelOpenAssignments(ctx context.Context, arg database.CancelOpenAssignmentsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.state.assignments {
		if a.OrderID != arg.OrderID || !openAssignment(a.Status) {
			continue
		}
		if arg.AssignmentType.Valid && string(a.AssignmentType) != arg.AssignmentType.String {
			continue
		}
		a.Status = database.AssignmentStatusCANCELLED
		m.state.assignments[id] = a
		n++
	}
	return n, nil
}

func (m *memStore) ListAssignmentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.DriverAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.DriverAssignment{}
	for _, a := range m.state.assignments {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CreateOrderPhoto(ctx context.Context, arg database.CreateOrderPhotoParams) (database.OrderPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := database.OrderPhoto{
		ID:           uuid.New(),
		OrderID:      arg.OrderID,
		AssignmentID: arg.AssignmentID,
		PhotoUrl:     arg.PhotoUrl,
		UploadedBy:   arg.UploadedBy,
		CreatedAt:    m.tick(),
	}
	m.state.photos = append(m.state.photos, p)
	return p, nil
}

// Processing

func (m *memStore) CreateOrderProcessing(ctx context.Context, arg database.CreateOrderProcessingParams) (database.OrderProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateOrderProcessing"); err != nil {
		return database.OrderProcessing{}, err
	}
	now := m.tick()
	p := database.OrderProcessing{
		ID:           uuid.New(),
		OrderID:      arg.OrderID,
		Status:       database.ProcessingStatusRECEIVED,
		TotalPieces:  arg.TotalPieces,
		TotalWeight:  arg.TotalWeight,
		ProcessedBy:  arg.ProcessedBy,
		QualityNotes: arg.QualityNotes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.state.processing[p.ID] = p
	return p, nil
}

func (m *memStore) GetOrderProcessingByOrder(ctx context.Context, orderID uuid.UUID) (database.OrderProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.state.processing {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return database.OrderProcessing{}, pgx.ErrNoRows
}

func (m *memStore) UpdateOrderProcessing(ctx context.Context, arg database.UpdateOrderProcessingParams) (database.OrderProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.processing[arg.ID]
	if !ok {
		return database.OrderProcessing{}, pgx.ErrNoRows
	}
	now := m.tick()
	p.Status = arg.Status
	if arg.TotalPieces.Valid {
		p.TotalPieces = arg.TotalPieces.Int32
	}
	if arg.TotalWeight.Valid {
		p.TotalWeight = arg.TotalWeight
	}
	if arg.ProcessedBy.Valid {
		p.ProcessedBy = arg.ProcessedBy
	}
	if arg.QualityNotes.Valid {
		p.QualityNotes = arg.QualityNotes
	}
	switch arg.Status {
	case database.ProcessingStatusINPROGRESS:
		p.StartedAt = pgtype.Timestamptz{Time: now, Valid: true}
	case database.ProcessingStatusCOMPLETED:
		p.CompletedAt = pgtype.Timestamptz{Time: now, Valid: true}
	}
	p.UpdatedAt = now
	m.state.processing[p.ID] = p
	return p, nil
}

func (m *memStore) CreateProcessingItemDetail(ctx context.Context, arg database.CreateProcessingItemDetailParams) (database.ProcessingItemDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := database.ProcessingItemDetail{
		ID:           uuid.New(),
		ProcessingID: arg.ProcessingID,
		ItemName:     arg.ItemName,
		ServiceType:  arg.ServiceType,
		Quantity:     arg.Quantity,
		Weight:       arg.Weight,
		Status:       arg.Status,
		Notes:        arg.Notes,
		CreatedAt:    m.tick(),
	}
	m.state.items[it.ID] = it
	return it, nil
}

func (m *memStore) UpdateProcessingItemStatus(ctx context.Context, arg database.UpdateProcessingItemStatusParams) (database.ProcessingItemDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.state.items[arg.ID]
	if !ok || it.ProcessingID != arg.ProcessingID {
		return database.ProcessingItemDetail{}, pgx.ErrNoRows
	}
	it.Status = arg.Status
	if arg.Notes.Valid {
		it.Notes = arg.Notes
	}
	m.state.items[it.ID] = it
	return it, nil
}

func (m *memStore) ListProcessingItems(ctx context.Context, processingID uuid.UUID) ([]database.ProcessingItemDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.ProcessingItemDetail{}
	for _, it := range m.state.items {
		if it.ProcessingID == processingID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Issues

func (m *memStore) CreateIssueReport(ctx context.Context, arg database.CreateIssueReportParams) (database.IssueReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is := database.IssueReport{
		ID:               uuid.New(),
		OrderID:          arg.OrderID,
		ProcessingItemID: arg.ProcessingItemID,
		ReportedBy:       arg.ReportedBy,
		IssueType:        arg.IssueType,
		Description:      arg.Description,
		Status:           database.IssueStatusOPEN,
		CreatedAt:        m.tick(),
	}
	m.state.issues[is.ID] = is
	return is, nil
}

func (m *memStore) GetIssueReport(ctx context.Context, id uuid.UUID) (database.IssueReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.state.issues[id]
	if !ok {
		return database.IssueReport{}, pgx.ErrNoRows
	}
	return is, nil
}

func (m *memStore) ResolveIssueReport(ctx context.Context, arg database.ResolveIssueReportParams) (database.IssueReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.state.issues[arg.ID]
	if !ok || is.Status != database.IssueStatusOPEN {
		return database.IssueReport{}, pgx.ErrNoRows
	}
	is.Status = arg.Status
	is.Resolution = arg.Resolution
	is.ResolvedBy = arg.ResolvedBy
	is.ResolvedAt = pgtype.Timestamptz{Time: m.tick(), Valid: true}
	m.state.issues[is.ID] = is
	return is, nil
}

func (m *memStore) ListIssueReportsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.IssueReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.IssueReport{}
	for _, is := range m.state.issues {
		if is.OrderID == orderID {
			out = append(out, is)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Wallets

func (m *memStore) GetWallet(ctx context.Context, id uuid.UUID) (database.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.wallets[id]
	if !ok {
		return database.Wallet{}, pgx.ErrNoRows
	}
	return w, nil
}

func (m *memStore) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (database.Wallet, error) {
	return m.GetWallet(ctx, id)
}

func (m *memStore) GetWalletByCustomer(ctx context.Context, customerID uuid.UUID) (database.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.state.wallets {
		if w.CustomerID == customerID {
			return w, nil
		}
	}
	return database.Wallet{}, pgx.ErrNoRows
}

func (m *memStore) CreateWallet(ctx context.Context, arg database.CreateWalletParams) (database.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.state.wallets {
		if w.CustomerID == arg.CustomerID {
			return database.Wallet{}, pgx.ErrNoRows
		}
	}
	now := m.tick()
	w := database.Wallet{
		ID:         uuid.New(),
		CustomerID: arg.CustomerID,
		Balance:    database.Numeric(decimal.Zero),
		Currency:   arg.Currency,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.state.wallets[w.ID] = w
	return w, nil
}

func (m *memStore) UpdateWalletBalance(ctx context.Context, arg database.UpdateWalletBalanceParams) (database.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateWalletBalance"); err != nil {
		return database.Wallet{}, err
	}
	w, ok := m.state.wallets[arg.ID]
	if !ok || w.Version != arg.Version {
		return database.Wallet{}, pgx.ErrNoRows
	}
	w.Balance = arg.Balance
	w.Version++
	w.UpdatedAt = m.tick()
	m.state.wallets[w.ID] = w
	return w, nil
}

func (m *memStore) CreateWalletTransaction(ctx context.Context, arg database.CreateWalletTransactionParams) (database.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := database.WalletTransaction{
		ID:              uuid.New(),
		WalletID:        arg.WalletID,
		TransactionType: arg.TransactionType,
		Amount:          arg.Amount,
		BalanceBefore:   arg.BalanceBefore,
		BalanceAfter:    arg.BalanceAfter,
		Status:          arg.Status,
		Description:     arg.Description,
		OrderID:         arg.OrderID,
		Metadata:        arg.Metadata,
		CreatedAt:       m.tick(),
	}
	if arg.Status != database.WalletTransactionStatusPENDING {
		txn.CompletedAt = pgtype.Timestamptz{Time: txn.CreatedAt, Valid: true}
	}
	m.state.walletTxns[txn.ID] = txn
	return txn, nil
}

func (m *memStore) GetWalletTransaction(ctx context.Context, id uuid.UUID) (database.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.state.walletTxns[id]
	if !ok {
		return database.WalletTransaction{}, pgx.ErrNoRows
	}
	return txn, nil
}

func (m *memStore) CompleteWalletTransaction(ctx context.Context, arg database.CompleteWalletTransactionParams) (database.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CompleteWalletTransaction"); err != nil {
		return database.WalletTransaction{}, err
	}
	txn, ok := m.state.walletTxns[arg.ID]
	if !ok || txn.Status != arg.FromStatus {
		return database.WalletTransaction{}, pgx.ErrNoRows
	}
	txn.Status = database.WalletTransactionStatusCOMPLETED
	txn.BalanceBefore = arg.BalanceBefore
	txn.BalanceAfter = arg.BalanceAfter
	txn.CompletedAt = pgtype.Timestamptz{Time: m.tick(), Valid: true}
	m.state.walletTxns[txn.ID] = txn
	return txn, nil
}

func (m *memStore) FailWalletTransaction(ctx context.Context, id uuid.UUID) (database.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.state.walletTxns[id]
	if !ok || txn.Status != database.WalletTransactionStatusPENDING {
		return database.WalletTransaction{}, pgx.ErrNoRows
	}
	txn.Status = database.WalletTransactionStatusFAILED
	txn.CompletedAt = pgtype.Timestamptz{Time: m.tick(), Valid: true}
	m.state.walletTxns[txn.ID] = txn
	return txn, nil
}

func (m *memStore) ListWalletTransactions(ctx context.Context, arg database.ListWalletTransactionsParams) ([]database.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.WalletTransaction
	for _, txn := range m.state.walletTxns {
		if txn.WalletID == arg.WalletID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := effectiveAt(out[i]), effectiveAt(out[j])
		if !ei.Equal(ej) {
			return ei.After(ej)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, arg.Limit, arg.Offset), nil
}

// Payments

func (m *memStore) CreatePaymentRecord(ctx context.Context, arg database.CreatePaymentRecordParams) (database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePaymentRecord"); err != nil {
		return database.PaymentRecord{}, err
	}
	now := m.tick()
	p := database.PaymentRecord{
		ID:                  uuid.New(),
		OrderID:             arg.OrderID,
		CustomerID:          arg.CustomerID,
		WalletTransactionID: arg.WalletTransactionID,
		Amount:              arg.Amount,
		PaymentMethod:       arg.PaymentMethod,
		PaymentStatus:       arg.PaymentStatus,
		TapReference:        arg.TapReference,
		TapTransactionID:    arg.TapTransactionID,
		RefundAmount:        database.Numeric(decimal.Zero),
		Metadata:            arg.Metadata,
		PaidAt:              arg.PaidAt,
		CreatedBy:           arg.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	m.state.payments[p.ID] = p
	return p, nil
}

func (m *memStore) GetPaymentRecord(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[id]
	if !ok {
		return database.PaymentRecord{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memStore) GetPaymentRecordForUpdate(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error) {
	return m.GetPaymentRecord(ctx, id)
}

func (m *memStore) GetPaymentRecordByTapReference(ctx context.Context, tapReference string) (database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.state.payments {
		if p.TapReference.Valid && p.TapReference.String == tapReference {
			return p, nil
		}
	}
	return database.PaymentRecord{}, pgx.ErrNoRows
}

func sortPayments(ps []database.PaymentRecord) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return bytes.Compare(ps[i].ID[:], ps[j].ID[:]) < 0
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

func (m *memStore) ListPaymentRecordsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.PaymentRecord{}
	for _, p := range m.state.payments {
		if p.OrderID.Valid && uuid.UUID(p.OrderID.Bytes) == orderID {
			out = append(out, p)
		}
	}
	sortPayments(out)
	return out, nil
}

func (m *memStore) ListPaymentRecordsForSync(ctx context.Context, arg database.ListPaymentRecordsForSyncParams) ([]database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.PaymentRecord
	for _, p := range m.state.payments {
		if p.PaymentStatus == arg.PaymentStatus && slices.Contains(arg.Methods, string(p.PaymentMethod)) {
			out = append(out, p)
		}
	}
	sortPayments(out)
	return page(out, arg.Limit, arg.Offset), nil
}

func (m *memStore) UpdatePaymentRecordStatus(ctx context.Context, arg database.UpdatePaymentRecordStatusParams) (database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdatePaymentRecordStatus"); err != nil {
		return database.PaymentRecord{}, err
	}
	p, ok := m.state.payments[arg.ID]
	if !ok {
		return database.PaymentRecord{}, pgx.ErrNoRows
	}
	p.PaymentStatus = arg.PaymentStatus
	if arg.TapTransactionID.Valid {
		p.TapTransactionID = arg.TapTransactionID
	}
	if arg.PaidAt.Valid {
		p.PaidAt = arg.PaidAt
	}
	p.Metadata = arg.Metadata
	p.UpdatedAt = m.tick()
	m.state.payments[p.ID] = p
	return p, nil
}

func (m *memStore) UpdatePaymentRecordRefund(ctx context.Context, arg database.UpdatePaymentRecordRefundParams) (database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[arg.ID]
	if !ok {
		return database.PaymentRecord{}, pgx.ErrNoRows
	}
	p.PaymentStatus = arg.PaymentStatus
	p.RefundAmount = arg.RefundAmount
	p.Metadata = arg.Metadata
	p.UpdatedAt = m.tick()
	m.state.payments[p.ID] = p
	return p, nil
}

func (m *memStore) UpdatePaymentRecordMetadata(ctx context.Context, arg database.UpdatePaymentRecordMetadataParams) (database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[arg.ID]
	if !ok {
		return database.PaymentRecord{}, pgx.ErrNoRows
	}
	p.Metadata = arg.Metadata
	m.state.payments[p.ID] = p
	return p, nil
}

func (m *memStore) ListPaymentRecordsMissingGatewayIDs(ctx context.Context, arg database.ListPaymentRecordsMissingGatewayIDsParams) ([]database.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.PaymentRecord
	for _, p := range m.state.payments {
		if p.TapReference.Valid && p.TapTransactionID.Valid {
			continue
		}
		if p.Metadata == nil || bytes.Compare(p.ID[:], arg.AfterID[:]) <= 0 {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return page(out, arg.Limit, 0), nil
}

func (m *memStore) FillPaymentGatewayIDs(ctx context.Context, arg database.FillPaymentGatewayIDsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FillPaymentGatewayIDs"); err != nil {
		return 0, err
	}
	p, ok := m.state.payments[arg.ID]
	if !ok {
		return 0, nil
	}
	if !p.TapReference.Valid {
		p.TapReference = arg.TapReference
	}
	if !p.TapTransactionID.Valid {
		p.TapTransactionID = arg.TapTransactionID
	}
	m.state.payments[p.ID] = p
	return 1, nil
}

// --- Seed helpers ---

func (m *memStore) addCustomer(name string) database.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := database.Customer{
		ID:        uuid.New(),
		Name:      name,
		Email:     database.Text(name + "@example.com"),
		CreatedAt: m.tick(),
	}
	m.state.customers[c.ID] = c
	return c
}

func (m *memStore) addOrder(customerID uuid.UUID, status database.OrderStatus, invoiceTotal string) database.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	m.state.orderSeq++
	o := database.Order{
		ID:            uuid.New(),
		OrderNumber:   fmt.Sprintf("LDX-%05d", m.state.orderSeq),
		CustomerID:    customerID,
		Status:        status,
		PaymentStatus: database.OrderPaymentStatusPENDING,
		InvoiceTotal:  database.Numeric(decimal.RequireFromString(invoiceTotal)),
		PickupAddress: "Block 3, Salmiya",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.state.orders[o.ID] = o
	return o
}

func (m *memStore) addWallet(customerID uuid.UUID, balance string) database.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	w := database.Wallet{
		ID:         uuid.New(),
		CustomerID: customerID,
		Balance:    database.Numeric(decimal.RequireFromString(balance)),
		Currency:   "KWD",
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.state.wallets[w.ID] = w
	return w
}

// addPayment stores rec as-is, filling ID, timestamps and refund amount.
func (m *memStore) addPayment(rec database.PaymentRecord) database.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := m.tick()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if !rec.RefundAmount.Valid {
		rec.RefundAmount = database.Numeric(decimal.Zero)
	}
	m.state.payments[rec.ID] = rec
	return rec
}

func (m *memStore) addWalletTxn(txn database.WalletTransaction) database.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CreatedAt = m.tick()
	if txn.Status == database.WalletTransactionStatusCOMPLETED {
		if !txn.CompletedAt.Valid {
			txn.CompletedAt = pgtype.Timestamptz{Time: txn.CreatedAt, Valid: true}
		}
		// Seeded rows chain onto the ledger unless the test sets balances.
		if !txn.BalanceAfter.Valid {
			before := decimal.Zero
			for _, prev := range m.state.walletTxns {
				if prev.WalletID == txn.WalletID && prev.Status == database.WalletTransactionStatusCOMPLETED {
					before = before.Add(signedAmount(prev.TransactionType, database.Decimal(prev.Amount)))
				}
			}
			txn.BalanceBefore = database.Numeric(before)
			txn.BalanceAfter = database.Numeric(before.Add(signedAmount(txn.TransactionType, database.Decimal(txn.Amount))))
		}
	}
	m.state.walletTxns[txn.ID] = txn
	return txn
}

func (m *memStore) order(id uuid.UUID) database.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.orders[id]
}

func (m *memStore) payment(id uuid.UUID) database.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.payments[id]
}

func (m *memStore) wallet(id uuid.UUID) database.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.wallets[id]
}

func (m *memStore) walletTxn(id uuid.UUID) database.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.walletTxns[id]
}

func (m *memStore) updatesFor(orderID uuid.UUID, field string) []database.OrderUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.OrderUpdate
	for _, u := range m.state.updates {
		if u.OrderID == orderID && u.Field == field {
			out = append(out, u)
		}
	}
	return out
}

// ledgerSum is Σ signed amounts of the wallet's COMPLETED transactions.
func (m *memStore) ledgerSum(walletID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, txn := range m.state.walletTxns {
		if txn.WalletID != walletID || txn.Status != database.WalletTransactionStatusCOMPLETED {
			continue
		}
		sum = sum.Add(signedAmount(txn.TransactionType, database.Decimal(txn.Amount)))
	}
	return sum
}

func effectiveAt(txn database.WalletTransaction) time.Time {
	if txn.CompletedAt.Valid {
		return txn.CompletedAt.Time
	}
	return txn.CreatedAt
}

// completedTxns returns the wallet's COMPLETED transactions in the order they
// took effect.
func (m *memStore) completedTxns(walletID uuid.UUID) []database.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.WalletTransaction
	for _, txn := range m.state.walletTxns {
		if txn.WalletID == walletID && txn.Status == database.WalletTransactionStatusCOMPLETED {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return effectiveAt(out[i]).Before(effectiveAt(out[j])) })
	return out
}

// --- Gateway fake ---

type fakeGateway struct {
	mu       sync.Mutex
	charges  map[string]*gateway.Charge
	invoices map[string]*gateway.Invoice
	errs     map[string]error
	calls    map[string]int
	seq      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		charges:  map[string]*gateway.Charge{},
		invoices: map[string]*gateway.Invoice{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (g *fakeGateway) call(name, id string) error {
	g.calls[name]++
	if err, ok := g.errs[name]; ok {
		return err
	}
	return g.errs[id]
}

func (g *fakeGateway) CreateCharge(ctx context.Context, req gateway.CreateChargeRequest) (*gateway.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateCharge", ""); err != nil {
		return nil, err
	}
	g.seq++
	ch := &gateway.Charge{ID: fmt.Sprintf("chg_%d", g.seq), Status: "INITIATED", Amount: req.Amount}
	ch.Transaction.URL = "https://checkout.example/" + ch.ID
	g.charges[ch.ID] = ch
	return ch, nil
}

func (g *fakeGateway) GetCharge(ctx context.Context, id string) (*gateway.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("GetCharge", id); err != nil {
		return nil, err
	}
	ch, ok := g.charges[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, req gateway.CreateInvoiceRequest) (*gateway.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateInvoice", ""); err != nil {
		return nil, err
	}
	g.seq++
	inv := &gateway.Invoice{
		ID:     fmt.Sprintf("inv_%d", g.seq),
		Status: "CREATED",
		URL:    fmt.Sprintf("https://invoices.example/inv_%d", g.seq),
	}
	g.invoices[inv.ID] = inv
	return inv, nil
}

func (g *fakeGateway) GetInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("GetInvoice", id); err != nil {
		return nil, err
	}
	inv, ok := g.invoices[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (g *fakeGateway) CancelInvoice(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CancelInvoice", id); err != nil {
		return err
	}
	inv, ok := g.invoices[id]
	if !ok {
		return gateway.ErrNotFound
	}
	inv.Status = "CANCELLED"
	return nil
}

func (g *fakeGateway) ResendInvoice(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.call("ResendInvoice", id)
}

func (g *fakeGateway) setChargeStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.charges[id]
	if !ok {
		ch = &gateway.Charge{ID: id}
		g.charges[id] = ch
	}
	ch.Status = status
}

func (g *fakeGateway) setInvoiceStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[id]
	if !ok {
		inv = &gateway.Invoice{ID: id}
		g.invoices[id] = inv
	}
	inv.Status = status
}

// --- Notifier fake ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// --- Misc helpers ---

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	return database.Decimal(n).Equal(dec(expected))
}

func lastAudit(t *testing.T, raw []byte) audit.Entry {
	t.Helper()
	doc, err := audit.Decode(raw)
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	e, ok := doc.Last()
	if !ok {
		t.Fatal("metadata has no audit entries")
	}
	return e
}
