package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"sambaza/carriers"
	"sambaza/ledger"
	"sambaza/models"
	"sambaza/providers"
)

// FloatLedger is the orchestrator's view of the float balance owner.
type FloatLedger interface {
	AtomicAdjust(poolID string, delta decimal.Decimal) (decimal.Decimal, error)
	SetBalance(poolID string, balance decimal.Decimal) error
}

// RecordStore is the durable record of payments, sales and audit entries.
type RecordStore interface {
	CreateIfAbsent(p *models.Payment) (bool, error)
	UpdatePayment(transactionID string, fields map[string]any) error
	RecordSale(sale *models.AirtimeSale) error
	UpdateSale(saleID string, fields map[string]any) error
	LogError(e *models.ErrorLog)
}

// Gateway dispatches airtime through whichever provider serves the carrier.
type Gateway interface {
	Dispatch(carrier carriers.Carrier, destination string, amount decimal.Decimal) providers.DispatchResult
}

// Ack is the body returned to the C2B gateway. Per protocol the confirmation
// leg always gets ResultCode 0 once the payment is durably recorded;
// fulfilment outcomes are never surfaced on this channel.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type Orchestrator struct {
	ledger  FloatLedger
	store   RecordStore
	gateway Gateway
	pools   map[carriers.Carrier]string
}

func New(l FloatLedger, store RecordStore, gateway Gateway, pools map[carriers.Carrier]string) *Orchestrator {
	return &Orchestrator{ledger: l, store: store, gateway: gateway, pools: pools}
}

// HandleConfirmation runs one confirmed payment through the pipeline:
// idempotent record, classify, debit float, dispatch, reconcile. The returned
// error is non-nil only when the payment itself could not be recorded; every
// later failure is absorbed into stored state and the audit log.
func (o *Orchestrator) HandleConfirmation(req models.MpesaConfirmationRequest, raw []byte) (Ack, error) {
	amount, amountErr := req.TransAmount.Decimal()
	if amountErr != nil {
		amount = decimal.Zero
	}

	payment := &models.Payment{
		TransactionID: req.TransID,
		Amount:        amount,
		PayerMsisdn:   req.MSISDN,
		PayerName:     req.PayerName(),
		TopupNumber:   req.BillRefNumber,
		RawCallback:   datatypes.JSON(raw),
		Status:        models.PaymentPendingSale,
	}

	created, err := o.store.CreateIfAbsent(payment)
	if err != nil {
		return Ack{}, fmt.Errorf("record inbound payment %s: %w", req.TransID, err)
	}
	if !created {
		return Ack{ResultCode: 0, ResultDesc: "Duplicate transaction acknowledged"}, nil
	}

	if amountErr != nil || !amount.IsPositive() {
		o.markPaymentFailed(payment.TransactionID, models.PaymentProcessingError)
		o.store.LogError(&models.ErrorLog{
			Type:          models.ErrTypeUnexpectedException,
			SubType:       "InvalidAmount",
			Severity:      models.SeverityError,
			Message:       fmt.Sprintf("unusable transaction amount %q", string(req.TransAmount)),
			TransactionID: payment.TransactionID,
		})
		return receivedAck(), nil
	}

	o.fulfil(payment)
	return receivedAck(), nil
}

func receivedAck() Ack {
	return Ack{ResultCode: 0, ResultDesc: "Confirmation received successfully"}
}

func (o *Orchestrator) fulfil(p *models.Payment) {
	carrier, err := carriers.Classify(p.TopupNumber)
	if err != nil {
		o.markPaymentFailed(p.TransactionID, models.PaymentFulfillmentFailed)
		o.store.LogError(&models.ErrorLog{
			Type:          models.ErrTypeUnknownCarrier,
			Severity:      models.SeverityError,
			Message:       fmt.Sprintf("cannot classify top-up number %q", p.TopupNumber),
			TransactionID: p.TransactionID,
		})
		return
	}
	destination, _ := carriers.Normalize(p.TopupNumber)

	poolID, ok := o.pools[carrier]
	if !ok {
		// Configuration hole, not caller error: classification succeeded but
		// no pool is willing to fund this carrier.
		o.markPaymentFailed(p.TransactionID, models.PaymentFulfillmentFailed)
		o.store.LogError(&models.ErrorLog{
			Type:          models.ErrTypePoolMappingMissing,
			Severity:      models.SeverityError,
			Message:       "no float pool configured for carrier " + string(carrier),
			TransactionID: p.TransactionID,
		})
		return
	}

	if _, err := o.ledger.AtomicAdjust(poolID, p.Amount.Neg()); err != nil {
		errType := models.ErrTypeInsufficientFloat
		if errors.Is(err, ledger.ErrCorruptBalance) {
			errType = models.ErrTypeLedgerCorrupt
		}
		o.markPaymentFailed(p.TransactionID, models.PaymentFloatIssue)
		o.store.LogError(&models.ErrorLog{
			Type:          errType,
			Severity:      models.SeverityError,
			Message:       fmt.Sprintf("debit of %s from pool %s rejected: %v", p.Amount.StringFixed(2), poolID, err),
			TransactionID: p.TransactionID,
		})
		return
	}

	// Float is debited. From here until a definitive dispatch outcome the
	// money is in flight; anything unexpected is a financial discrepancy.
	sale := &models.AirtimeSale{
		SaleID:        uuid.New().String(),
		TransactionID: p.TransactionID,
		TopupNumber:   destination,
		Amount:        p.Amount,
		Carrier:       string(carrier),
		Status:        models.SalePendingDispatch,
	}
	o.dispatchAndSettle(p, sale, carrier, poolID)
}

func (o *Orchestrator) dispatchAndSettle(p *models.Payment, sale *models.AirtimeSale, carrier carriers.Carrier, poolID string) {
	defer func() {
		if r := recover(); r != nil {
			o.store.UpdateSale(sale.SaleID, map[string]any{
				"status":        models.SaleFailedServerError,
				"error_message": fmt.Sprint(r),
			})
			o.store.UpdatePayment(p.TransactionID, map[string]any{
				"status":         models.PaymentProcessingError,
				"linked_sale_id": sale.SaleID,
			})
			o.store.LogError(&models.ErrorLog{
				Type:          models.ErrTypeUnexpectedException,
				Severity:      models.SeverityCritical,
				Message:       fmt.Sprintf("failure after float debit, dispatch outcome unknown, manual reconciliation required: %v", r),
				TransactionID: p.TransactionID,
				SaleID:        sale.SaleID,
			})
		}
	}()

	if err := o.store.RecordSale(sale); err != nil {
		// No dispatch happened yet, so reversing the debit is safe.
		severity := models.SeverityError
		msg := fmt.Sprintf("sale record write failed, debit reversed: %v", err)
		if _, revErr := o.ledger.AtomicAdjust(poolID, p.Amount); revErr != nil {
			severity = models.SeverityCritical
			msg = fmt.Sprintf("sale record write failed (%v) and reversal failed (%v), manual reconciliation required", err, revErr)
		}
		o.markPaymentFailed(p.TransactionID, models.PaymentProcessingError)
		o.store.LogError(&models.ErrorLog{
			Type:          models.ErrTypeUnexpectedException,
			SubType:       "SaleRecordFailed",
			Severity:      severity,
			Message:       msg,
			TransactionID: p.TransactionID,
		})
		return
	}

	res := o.gateway.Dispatch(carrier, sale.TopupNumber, p.Amount)

	if res.Status == providers.StatusSuccess {
		o.store.UpdateSale(sale.SaleID, map[string]any{
			"status":          models.SaleCompleted,
			"provider_ref":    res.ProviderRef,
			"dispatch_result": resultJSON(res),
		})
		o.store.UpdatePayment(p.TransactionID, map[string]any{
			"status":         models.PaymentFulfilled,
			"linked_sale_id": sale.SaleID,
		})

		// The provider's own float figure is authoritative when present. A
		// failed overwrite is logged, never fatal: the dispatch stands.
		if res.ReportedBalance != nil {
			if err := o.ledger.SetBalance(poolID, *res.ReportedBalance); err != nil {
				log.Printf("[dispatch] pool %s: reconciliation overwrite failed: %v", poolID, err)
				o.store.LogError(&models.ErrorLog{
					Type:          models.ErrTypeLedgerCorrupt,
					SubType:       "ReconciliationWriteFailed",
					Severity:      models.SeverityWarning,
					Message:       fmt.Sprintf("could not apply provider-reported balance %s to pool %s: %v", res.ReportedBalance.StringFixed(2), poolID, err),
					TransactionID: p.TransactionID,
					SaleID:        sale.SaleID,
				})
			}
		}
		return
	}

	// Dispatch failed: record it, then compensate the debit.
	o.store.UpdateSale(sale.SaleID, map[string]any{
		"status":          models.SaleFailedDispatchAPI,
		"error_message":   res.Err,
		"dispatch_result": resultJSON(res),
	})
	o.store.LogError(&models.ErrorLog{
		Type:          models.ErrTypeProviderDispatchFailed,
		Severity:      models.SeverityError,
		Message:       fmt.Sprintf("dispatch of %s to %s via %s failed: %s", p.Amount.StringFixed(2), sale.TopupNumber, carrier, res.Err),
		TransactionID: p.TransactionID,
		SaleID:        sale.SaleID,
		Context:       resultJSON(res),
	})

	if _, err := o.ledger.AtomicAdjust(poolID, p.Amount); err != nil {
		o.store.LogError(&models.ErrorLog{
			Type:          models.ErrTypeReversalFailed,
			Severity:      models.SeverityCritical,
			Message:       fmt.Sprintf("reversal of %s to pool %s failed, manual reconciliation required: %v", p.Amount.StringFixed(2), poolID, err),
			TransactionID: p.TransactionID,
			SaleID:        sale.SaleID,
		})
	}

	o.store.UpdatePayment(p.TransactionID, map[string]any{
		"status":         models.PaymentFulfillmentFailed,
		"linked_sale_id": sale.SaleID,
	})
}

func (o *Orchestrator) markPaymentFailed(transactionID, status string) {
	if err := o.store.UpdatePayment(transactionID, map[string]any{"status": status}); err != nil {
		log.Printf("[dispatch] payment %s: status update to %s failed: %v", transactionID, status, err)
	}
}

func resultJSON(res providers.DispatchResult) datatypes.JSON {
	b, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
