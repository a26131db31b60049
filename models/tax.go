package models

import (
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

type Jurisdiction string

const (
	JurisdictionIntraState Jurisdiction = "intra"
	JurisdictionInterState Jurisdiction = "inter"
)

// UnknownStatePolicy decides the jurisdiction when the seller has no registered state.
type UnknownStatePolicy int

const (
	UnknownStateInterState UnknownStatePolicy = iota
	UnknownStateIntraState
)

// TaxSplit holds one line's tax amount split by jurisdiction. Cgst+Sgst+Igst == Total.
type TaxSplit struct {
	Cgst  decimal.Decimal `json:"cgst"`
	Sgst  decimal.Decimal `json:"sgst"`
	Igst  decimal.Decimal `json:"igst"`
	Total decimal.Decimal `json:"total"`
}

// ClassifyJurisdiction compares states case-insensitively after trimming.
// An empty customer state never matches.
func ClassifyJurisdiction(sellerState string, customerState string, policy UnknownStatePolicy) Jurisdiction {
	seller := utils.NormalizeState(sellerState)
	if seller == "" {
		if policy == UnknownStateIntraState {
			return JurisdictionIntraState
		}
		return JurisdictionInterState
	}
	if seller == utils.NormalizeState(customerState) {
		return JurisdictionIntraState
	}
	return JurisdictionInterState
}

// SplitTax computes round(subtotal x pct / 100) and splits it. For intra-state CGST is the
// rounded half and SGST the remainder, so an odd cent goes to CGST.
func SplitTax(j Jurisdiction, lineSubtotal decimal.Decimal, pct decimal.Decimal) TaxSplit {
	total := utils.CalculateTaxAmount(lineSubtotal, pct)
	if j == JurisdictionIntraState {
		cgst := utils.RoundMoney(total.Div(decimal.NewFromInt(2)))
		return TaxSplit{
			Cgst:  cgst,
			Sgst:  total.Sub(cgst),
			Igst:  decimal.Zero,
			Total: total,
		}
	}
	return TaxSplit{
		Cgst:  decimal.Zero,
		Sgst:  decimal.Zero,
		Igst:  total,
		Total: total,
	}
}
