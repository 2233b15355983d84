package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexibleString accepts a JSON string or number. The C2B gateway is not
// consistent about whether TransAmount arrives quoted.
type FlexibleString string

func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	var s string
	var i int64
	var f float64

	if err := json.Unmarshal(data, &s); err == nil {
		*fs = FlexibleString(s)
		return nil
	}

	if err := json.Unmarshal(data, &i); err == nil {
		*fs = FlexibleString(fmt.Sprintf("%d", i))
		return nil
	}

	if err := json.Unmarshal(data, &f); err == nil {
		*fs = FlexibleString(fmt.Sprintf("%g", f))
		return nil
	}

	return fmt.Errorf("unable to parse %s as FlexibleString", string(data))
}

func (fs FlexibleString) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(string(fs)))
}

// MpesaValidationRequest is the pre-confirmation gate payload. Only the
// amount matters for the accept/reject decision.
type MpesaValidationRequest struct {
	TransactionType   string         `json:"TransactionType"`
	TransID           string         `json:"TransID"`
	TransTime         string         `json:"TransTime"`
	TransAmount       FlexibleString `json:"TransAmount"`
	BusinessShortCode string         `json:"BusinessShortCode"`
	BillRefNumber     string         `json:"BillRefNumber"`
	MSISDN            string         `json:"MSISDN"`
	FirstName         string         `json:"FirstName"`
	MiddleName        string         `json:"MiddleName"`
	LastName          string         `json:"LastName"`
}

// MpesaConfirmationRequest is the money-moved callback. BillRefNumber carries
// the phone number the payer wants topped up.
type MpesaConfirmationRequest struct {
	TransactionType   string         `json:"TransactionType"`
	TransID           string         `json:"TransID"`
	TransTime         string         `json:"TransTime"`
	TransAmount       FlexibleString `json:"TransAmount"`
	BusinessShortCode string         `json:"BusinessShortCode"`
	BillRefNumber     string         `json:"BillRefNumber"`
	InvoiceNumber     string         `json:"InvoiceNumber"`
	OrgAccountBalance FlexibleString `json:"OrgAccountBalance"`
	ThirdPartyTransID string         `json:"ThirdPartyTransID"`
	MSISDN            string         `json:"MSISDN"`
	FirstName         string         `json:"FirstName"`
	MiddleName        string         `json:"MiddleName"`
	LastName          string         `json:"LastName"`
}

func (r MpesaConfirmationRequest) PayerName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.FirstName, r.MiddleName, r.LastName} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, " ")
}
