package domain

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// Document is the credit transfer initiation batch. The layout follows the
// ISO 20022 pain.001 structure flattened to the fields downstream banking
// tools actually read.
type Document struct {
	XMLName              xml.Name  `xml:"creditTransferInitiation"`
	MessageID            string    `xml:"groupHeader>messageId"`
	CreationDateTime     string    `xml:"groupHeader>creationDateTime"`
	NumberOfTransactions int       `xml:"groupHeader>numberOfTransactions"`
	ControlSum           string    `xml:"groupHeader>controlSum"`
	InitiatorName        string    `xml:"groupHeader>initiatingParty>name"`
	Debtor               Party     `xml:"debtor"`
	Payments             []Payment `xml:"payments>payment"`
}

type Party struct {
	Name string `xml:"name"`
	IBAN string `xml:"iban"`
	BIC  string `xml:"bic,omitempty"`
}

type Payment struct {
	EndToEndID             string `xml:"endToEndId"`
	Amount                 string `xml:"amount"`
	Currency               string `xml:"currency"`
	Creditor               Party  `xml:"creditor"`
	RemittanceText         string `xml:"remittanceInfo"`
	RequestedExecutionDate string `xml:"requestedExecutionDate"`
}

const maxEndToEndIDLen = 35

var endToEndIDInvalid = regexp.MustCompile(`[^A-Za-z0-9+?/:().,'-]`)

// SanitizeEndToEndID reduces an identifier to the SEPA restricted character
// set and the 35 character limit.
func SanitizeEndToEndID(id string) string {
	clean := endToEndIDInvalid.ReplaceAllString(strings.TrimSpace(id), "-")
	if clean == "" {
		clean = "NOTPROVIDED"
	}
	if len(clean) > maxEndToEndIDLen {
		clean = clean[:maxEndToEndIDLen]
	}
	return clean
}
