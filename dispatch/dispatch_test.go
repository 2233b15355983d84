package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sambaza/carriers"
	"sambaza/ledger"
	"sambaza/models"
	"sambaza/providers"
)

type fakeLedger struct {
	balances      map[string]decimal.Decimal
	failCredit    bool
	adjustErr     error
	setBalanceErr error
	adjustCalls   int
	setCalls      int
}

func newFakeLedger(pools map[string]string) *fakeLedger {
	balances := map[string]decimal.Decimal{}
	for pool, bal := range pools {
		balances[pool] = decimal.RequireFromString(bal)
	}
	return &fakeLedger{balances: balances}
}

func (f *fakeLedger) AtomicAdjust(poolID string, delta decimal.Decimal) (decimal.Decimal, error) {
	f.adjustCalls++
	if f.adjustErr != nil {
		return decimal.Decimal{}, f.adjustErr
	}
	if delta.IsPositive() && f.failCredit {
		return decimal.Decimal{}, errors.New("store unavailable")
	}
	next := f.balances[poolID].Add(delta)
	if next.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: pool %s", ledger.ErrInsufficientFloat, poolID)
	}
	f.balances[poolID] = next
	return next, nil
}

func (f *fakeLedger) SetBalance(poolID string, balance decimal.Decimal) error {
	f.setCalls++
	if f.setBalanceErr != nil {
		return f.setBalanceErr
	}
	f.balances[poolID] = balance
	return nil
}

type fakeStore struct {
	payments      map[string]*models.Payment
	sales         map[string]*models.AirtimeSale
	logs          []*models.ErrorLog
	createErr     error
	recordSaleErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: map[string]*models.Payment{},
		sales:    map[string]*models.AirtimeSale{},
	}
}

func (f *fakeStore) CreateIfAbsent(p *models.Payment) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, exists := f.payments[p.TransactionID]; exists {
		return false, nil
	}
	cp := *p
	f.payments[p.TransactionID] = &cp
	return true, nil
}

func (f *fakeStore) UpdatePayment(transactionID string, fields map[string]any) error {
	p, ok := f.payments[transactionID]
	if !ok {
		return errors.New("payment not found")
	}
	if v, ok := fields["status"]; ok {
		p.Status = v.(string)
	}
	if v, ok := fields["linked_sale_id"]; ok {
		p.LinkedSaleID = v.(string)
	}
	return nil
}

func (f *fakeStore) RecordSale(sale *models.AirtimeSale) error {
	if f.recordSaleErr != nil {
		return f.recordSaleErr
	}
	cp := *sale
	f.sales[sale.SaleID] = &cp
	return nil
}

func (f *fakeStore) UpdateSale(saleID string, fields map[string]any) error {
	s, ok := f.sales[saleID]
	if !ok {
		return errors.New("sale not found")
	}
	if v, ok := fields["status"]; ok {
		s.Status = v.(string)
	}
	if v, ok := fields["error_message"]; ok {
		s.ErrorMessage = v.(string)
	}
	if v, ok := fields["provider_ref"]; ok {
		s.ProviderRef = v.(string)
	}
	return nil
}

func (f *fakeStore) LogError(e *models.ErrorLog) {
	f.logs = append(f.logs, e)
}

func (f *fakeStore) onlySale(t *testing.T) *models.AirtimeSale {
	t.Helper()
	require.Len(t, f.sales, 1)
	for _, s := range f.sales {
		return s
	}
	return nil
}

func (f *fakeStore) logOfType(typ string) *models.ErrorLog {
	for _, e := range f.logs {
		if e.Type == typ {
			return e
		}
	}
	return nil
}

type fakeGateway struct {
	res          providers.DispatchResult
	panicMessage string
	calls        int
	lastDest     string
	lastCarrier  carriers.Carrier
}

func (f *fakeGateway) Dispatch(carrier carriers.Carrier, destination string, amount decimal.Decimal) providers.DispatchResult {
	f.calls++
	f.lastCarrier = carrier
	f.lastDest = destination
	if f.panicMessage != "" {
		panic(f.panicMessage)
	}
	return f.res
}

var testPools = map[carriers.Carrier]string{
	carriers.Safaricom: "saf-dealer",
	carriers.Airtel:    "at-aggregator",
}

func confirmation(transID, amount, topup string) models.MpesaConfirmationRequest {
	return models.MpesaConfirmationRequest{
		TransactionType: "Pay Bill",
		TransID:         transID,
		TransTime:       "20260830142055",
		TransAmount:     models.FlexibleString(amount),
		BillRefNumber:   topup,
		MSISDN:          "254711222333",
		FirstName:       "JANE",
		LastName:        "WANJIKU",
	}
}

func balance(t *testing.T, l *fakeLedger, pool, want string) {
	t.Helper()
	assert.True(t, l.balances[pool].Equal(decimal.RequireFromString(want)),
		"pool %s: got %s want %s", pool, l.balances[pool], want)
}

func TestSuccessfulDispatch(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{res: providers.DispatchResult{Status: providers.StatusSuccess, ProviderRef: "REF001"}}
	o := New(l, store, gw, testPools)

	ack, err := o.HandleConfirmation(confirmation("TX1", "50", "+254722123456"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode)

	balance(t, l, "saf-dealer", "950")

	sale := store.onlySale(t)
	assert.Equal(t, models.SaleCompleted, sale.Status)
	assert.Equal(t, "REF001", sale.ProviderRef)
	assert.Equal(t, "TX1", sale.TransactionID)

	p := store.payments["TX1"]
	assert.Equal(t, models.PaymentFulfilled, p.Status)
	assert.Equal(t, sale.SaleID, p.LinkedSaleID)

	// Gateway receives the canonical local form regardless of callback format.
	assert.Equal(t, "0722123456", gw.lastDest)
	assert.Equal(t, carriers.Safaricom, gw.lastCarrier)
	assert.Empty(t, store.logs)
}

func TestReportedBalanceReconciliation(t *testing.T) {
	reported := decimal.RequireFromString("12345.67")
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{res: providers.DispatchResult{
		Status:          providers.StatusSuccess,
		ProviderRef:     "REF002",
		ReportedBalance: &reported,
	}}
	o := New(l, store, gw, testPools)

	_, err := o.HandleConfirmation(confirmation("TX2", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)

	// Provider figure overwrites the locally tracked balance.
	balance(t, l, "saf-dealer", "12345.67")
	assert.Equal(t, 1, l.setCalls)
}

func TestReportedBalanceReconciliationFailureIsNotFatal(t *testing.T) {
	reported := decimal.RequireFromString("900")
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	l.setBalanceErr = errors.New("store unavailable")
	store := newFakeStore()
	gw := &fakeGateway{res: providers.DispatchResult{
		Status:          providers.StatusSuccess,
		ProviderRef:     "REF003",
		ReportedBalance: &reported,
	}}
	o := New(l, store, gw, testPools)

	_, err := o.HandleConfirmation(confirmation("TX3", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)

	// Sale and payment still complete; the miss is only audited.
	assert.Equal(t, models.SaleCompleted, store.onlySale(t).Status)
	assert.Equal(t, models.PaymentFulfilled, store.payments["TX3"].Status)
	entry := store.logOfType(models.ErrTypeLedgerCorrupt)
	require.NotNil(t, entry)
	assert.Equal(t, models.SeverityWarning, entry.Severity)
}

func TestInsufficientFloat(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "20"})
	store := newFakeStore()
	gw := &fakeGateway{res: providers.DispatchResult{Status: providers.StatusSuccess}}
	o := New(l, store, gw, testPools)

	ack, err := o.HandleConfirmation(confirmation("TX4", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode) // payment was still received

	balance(t, l, "saf-dealer", "20")
	assert.Empty(t, store.sales)
	assert.Equal(t, 0, gw.calls)
	assert.Equal(t, models.PaymentFloatIssue, store.payments["TX4"].Status)

	entry := store.logOfType(models.ErrTypeInsufficientFloat)
	require.NotNil(t, entry)
	assert.Equal(t, "TX4", entry.TransactionID)
}

func TestDispatchFailureReversesDebit(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{res: providers.Failed("SYSTEM BUSY", "recharge returned 500")}
	o := New(l, store, gw, testPools)

	ack, err := o.HandleConfirmation(confirmation("TX5", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode)

	// Net pool change for the transaction is zero.
	balance(t, l, "saf-dealer", "1000")
	assert.Equal(t, 2, l.adjustCalls) // debit + compensating credit

	sale := store.onlySale(t)
	assert.Equal(t, models.SaleFailedDispatchAPI, sale.Status)
	assert.Equal(t, "recharge returned 500", sale.ErrorMessage)
	assert.Equal(t, models.PaymentFulfillmentFailed, store.payments["TX5"].Status)

	require.NotNil(t, store.logOfType(models.ErrTypeProviderDispatchFailed))
	assert.Nil(t, store.logOfType(models.ErrTypeReversalFailed))
}

func TestReversalFailureIsCritical(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	l.failCredit = true
	store := newFakeStore()
	gw := &fakeGateway{res: providers.Failed("", "timeout")}
	o := New(l, store, gw, testPools)

	_, err := o.HandleConfirmation(confirmation("TX6", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)

	// The debit stands; the discrepancy is flagged for manual reconciliation.
	balance(t, l, "saf-dealer", "950")

	entry := store.logOfType(models.ErrTypeReversalFailed)
	require.NotNil(t, entry)
	assert.Equal(t, models.SeverityCritical, entry.Severity)
	assert.Equal(t, "TX6", entry.TransactionID)
	assert.Equal(t, models.PaymentFulfillmentFailed, store.payments["TX6"].Status)
}

func TestReportedBalanceDoesNotOverrideFailedStatus(t *testing.T) {
	reported := decimal.RequireFromString("5000")
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{res: providers.DispatchResult{
		Status:          providers.StatusFailed,
		ReportedBalance: &reported,
		Err:             "provider status FAILED",
	}}
	o := New(l, store, gw, testPools)

	_, err := o.HandleConfirmation(confirmation("TX7", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)

	// Status is authoritative: failure path ran, no reconciliation overwrite.
	assert.Equal(t, models.SaleFailedDispatchAPI, store.onlySale(t).Status)
	assert.Equal(t, 0, l.setCalls)
	balance(t, l, "saf-dealer", "1000")
}

func TestDuplicateConfirmationIsNoOp(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{res: providers.DispatchResult{Status: providers.StatusSuccess, ProviderRef: "REF"}}
	o := New(l, store, gw, testPools)

	_, err := o.HandleConfirmation(confirmation("TX8", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)
	balance(t, l, "saf-dealer", "950")
	firstAdjusts := l.adjustCalls

	ack, err := o.HandleConfirmation(confirmation("TX8", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Duplicate transaction acknowledged", ack.ResultDesc)

	// Exactly one payment, one sale, zero additional pool mutations.
	assert.Len(t, store.payments, 1)
	assert.Len(t, store.sales, 1)
	assert.Equal(t, firstAdjusts, l.adjustCalls)
	balance(t, l, "saf-dealer", "950")
}

func TestUnknownCarrier(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{}
	o := New(l, store, gw, testPools)

	ack, err := o.HandleConfirmation(confirmation("TX9", "50", "12345"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode)

	assert.Equal(t, models.PaymentFulfillmentFailed, store.payments["TX9"].Status)
	assert.Empty(t, store.sales)
	assert.Equal(t, 0, l.adjustCalls)
	require.NotNil(t, store.logOfType(models.ErrTypeUnknownCarrier))
}

func TestPoolMappingMissing(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	o := New(l, store, &fakeGateway{}, map[carriers.Carrier]string{carriers.Safaricom: "saf-dealer"})

	// Telkom classifies fine but has no pool configured.
	_, err := o.HandleConfirmation(confirmation("TX10", "50", "0770123456"), []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentFulfillmentFailed, store.payments["TX10"].Status)
	assert.Equal(t, 0, l.adjustCalls)
	require.NotNil(t, store.logOfType(models.ErrTypePoolMappingMissing))
}

func TestRecordFailureSurfacesError(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	o := New(l, store, &fakeGateway{}, testPools)

	_, err := o.HandleConfirmation(confirmation("TX11", "50", "0722123456"), []byte(`{}`))
	assert.Error(t, err)
	assert.Equal(t, 0, l.adjustCalls)
}

func TestPanicAfterDebitIsContained(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	gw := &fakeGateway{panicMessage: "nil map write"}
	o := New(l, store, gw, testPools)

	ack, err := o.HandleConfirmation(confirmation("TX12", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode)

	sale := store.onlySale(t)
	assert.Equal(t, models.SaleFailedServerError, sale.Status)
	assert.Equal(t, models.PaymentProcessingError, store.payments["TX12"].Status)

	entry := store.logOfType(models.ErrTypeUnexpectedException)
	require.NotNil(t, entry)
	assert.Equal(t, models.SeverityCritical, entry.Severity)
	assert.Contains(t, entry.Message, "dispatch outcome unknown")
}

func TestSaleRecordFailureReversesDebit(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	store.recordSaleErr = errors.New("disk full")
	gw := &fakeGateway{}
	o := New(l, store, gw, testPools)

	_, err := o.HandleConfirmation(confirmation("TX13", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)

	balance(t, l, "saf-dealer", "1000")
	assert.Equal(t, 0, gw.calls)
	assert.Equal(t, models.PaymentProcessingError, store.payments["TX13"].Status)
	entry := store.logOfType(models.ErrTypeUnexpectedException)
	require.NotNil(t, entry)
	assert.Equal(t, models.SeverityError, entry.Severity)
}

func TestUnusableAmount(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	store := newFakeStore()
	o := New(l, store, &fakeGateway{}, testPools)

	ack, err := o.HandleConfirmation(confirmation("TX14", "fifty", "0722123456"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, ack.ResultCode)

	assert.Equal(t, models.PaymentProcessingError, store.payments["TX14"].Status)
	assert.Equal(t, 0, l.adjustCalls)
}

func TestLedgerCorruptionIsDistinguished(t *testing.T) {
	l := newFakeLedger(map[string]string{"saf-dealer": "1000"})
	l.adjustErr = fmt.Errorf("%w: pool saf-dealer holds \"garbage\"", ledger.ErrCorruptBalance)
	store := newFakeStore()
	o := New(l, store, &fakeGateway{}, testPools)

	_, err := o.HandleConfirmation(confirmation("TX15", "50", "0722123456"), []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentFloatIssue, store.payments["TX15"].Status)
	require.NotNil(t, store.logOfType(models.ErrTypeLedgerCorrupt))
	assert.Nil(t, store.logOfType(models.ErrTypeInsufficientFloat))
}
