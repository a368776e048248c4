// Package joborder manages job order records and the serial number counter kept in the object store.
package joborder

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when no record matches the requested id
var ErrNotFound = errors.New("job order not found")

// ErrInvalidRecord is returned by Create for input which can't be stored
var ErrInvalidRecord = errors.New("invalid job order")

// DateLayout is the day/month/year format the order form suggests for Date, the field itself is free text
const DateLayout = "02/01/2006"

// Record is a single job order. JSON names match documents written by earlier versions.
type Record struct {
	SrNo            int       `json:"srNo" jsonschema:"required,minimum=1,description=serial number shown zero padded to 6 digits"`
	Date            string    `json:"date" jsonschema:"description=order date as entered"`
	SalePerson      string    `json:"salePerson"`
	EnteredBy       string    `json:"enteredBy"`
	Client          string    `json:"client" jsonschema:"required"`
	Item            string    `json:"item" jsonschema:"required,description=item description"`
	Production      string    `json:"production"`
	MaterialUsed    string    `json:"materialUsed"`
	Designer        string    `json:"designer"`
	ArtWorkProvided string    `json:"artWorkProvided"`
	InvoiceNo       string    `json:"invoiceNo"`
	LpoNo           string    `json:"lpoNo"`
	DeliveryDate    string    `json:"deliveryDate"`
	DoNo            string    `json:"doNo"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	ID              string    `json:"id,omitempty"`
}

// Created is the result of a successful Create
type Created struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

// Serial returns the serial number padded to 6 digits
func (r Record) Serial() string {
	return fmt.Sprintf("%06d", r.SrNo)
}

// MatchSerial checks if query is a part of the serial number, either plain or zero padded.
// Empty query matches everything.
func (r Record) MatchSerial(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strconv.Itoa(r.SrNo), q) || strings.Contains(r.Serial(), q)
}

// validate checks the fields the repository relies on
func (r Record) validate() error {
	if r.SrNo <= 0 {
		return fmt.Errorf("%w: serial number must be positive, got %d", ErrInvalidRecord, r.SrNo)
	}
	return nil
}

// sortRecords orders records newest first. When either of the compared records has no creation
// time the higher serial number goes first. Records written before timestamps existed rely on this.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero() {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.SrNo > b.SrNo
	})
}
