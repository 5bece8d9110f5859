package service

import (
	"github.com/laundrix/api/internal/database"
	"github.com/shopspring/decimal"
)

// PaymentSummary is the money picture of one order derived from its
// payment records.
type PaymentSummary struct {
	InvoiceTotal      decimal.Decimal             `json:"invoice_total"`
	TotalPaid         decimal.Decimal             `json:"total_paid"`
	TotalRefunded     decimal.Decimal             `json:"total_refunded"`
	NetAmountPaid     decimal.Decimal             `json:"net_amount_paid"`
	OutstandingAmount decimal.Decimal             `json:"outstanding_amount"`
	OverpaidAmount    decimal.Decimal             `json:"overpaid_amount"`
	Status            database.OrderPaymentStatus `json:"status"`
	PaymentCount      int                         `json:"payment_count"`
}

// succeeded reports whether money moved for the record at some point.
func succeeded(s database.PaymentStatus) bool {
	switch s {
	case database.PaymentStatusPAID,
		database.PaymentStatusPARTIALREFUND,
		database.PaymentStatusREFUNDED:
		return true
	}
	return false
}

// SummarizePayments derives the order payment status from invoiceTotal and
// the order's payment records. It has no side effects.
func SummarizePayments(invoiceTotal decimal.Decimal, records []database.PaymentRecord) PaymentSummary {
	sum := PaymentSummary{
		InvoiceTotal:  invoiceTotal,
		TotalPaid:     decimal.Zero,
		TotalRefunded: decimal.Zero,
		PaymentCount:  len(records),
	}

	anySucceeded := false
	var latest *database.PaymentRecord
	for i := range records {
		r := &records[i]
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
		if !succeeded(r.PaymentStatus) {
			continue
		}
		anySucceeded = true
		sum.TotalPaid = sum.TotalPaid.Add(database.Decimal(r.Amount))
		sum.TotalRefunded = sum.TotalRefunded.Add(database.Decimal(r.RefundAmount))
	}

	sum.NetAmountPaid = sum.TotalPaid.Sub(sum.TotalRefunded)
	sum.OutstandingAmount = decimal.Max(decimal.Zero, invoiceTotal.Sub(sum.NetAmountPaid))
	sum.OverpaidAmount = decimal.Max(decimal.Zero, sum.NetAmountPaid.Sub(invoiceTotal))

	switch {
	case anySucceeded && !sum.NetAmountPaid.IsPositive():
		sum.Status = database.OrderPaymentStatusREFUNDED
	case anySucceeded && sum.OutstandingAmount.IsZero():
		sum.Status = database.OrderPaymentStatusPAID
	case sum.NetAmountPaid.IsPositive():
		sum.Status = database.OrderPaymentStatusPARTIAL
	case latest != nil && latest.PaymentStatus == database.PaymentStatusFAILED:
		sum.Status = database.OrderPaymentStatusFAILED
	default:
		sum.Status = database.OrderPaymentStatusPENDING
	}
	return sum
}
