// Package crm describes the source CRM objects a sync can read: their
// standard fields and the allowed values of picklist fields.
package crm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
)

// ErrUnknownEntity is returned for an entity outside the catalog.
var ErrUnknownEntity = errors.New("unknown source entity")

// ErrUnknownPicklist is returned for a field without picklist values.
var ErrUnknownPicklist = errors.New("unknown picklist")

// field is a catalog entry: API name and label.
type field struct {
	name  string
	label string
}

// Every entity carries these.
var commonFields = []field{
	{"Id", "Record ID"},
	{"CreatedDate", "Created Date"},
	{"LastModifiedDate", "Last Modified Date"},
	{"OwnerId", "Owner ID"},
}

var catalog = map[string][]field{
	"Contact": {
		{"FirstName", "First Name"}, {"LastName", "Last Name"}, {"Email", "Email"},
		{"Phone", "Phone"}, {"MobilePhone", "Mobile Phone"}, {"Title", "Title"},
		{"AccountId", "Account ID"}, {"Birthdate", "Birthdate"}, {"MailingCity", "Mailing City"},
		{"MailingCountry", "Mailing Country"}, {"HasOptedOutOfEmail", "Email Opt Out"},
	},
	"Lead": {
		{"FirstName", "First Name"}, {"LastName", "Last Name"}, {"Email", "Email"},
		{"Phone", "Phone"}, {"Company", "Company"}, {"Status", "Lead Status"},
		{"LeadSource", "Lead Source"}, {"Rating", "Rating"}, {"IsConverted", "Converted"},
		{"AnnualRevenue", "Annual Revenue"}, {"City", "City"}, {"Country", "Country"},
	},
	"Account": {
		{"Name", "Account Name"}, {"Industry", "Industry"}, {"Type", "Account Type"},
		{"AnnualRevenue", "Annual Revenue"}, {"NumberOfEmployees", "Employees"},
		{"Website", "Website"}, {"BillingCity", "Billing City"}, {"BillingCountry", "Billing Country"},
	},
	"Opportunity": {
		{"Name", "Opportunity Name"}, {"StageName", "Stage"}, {"Amount", "Amount"},
		{"CloseDate", "Close Date"}, {"Probability", "Probability (%)"}, {"AccountId", "Account ID"},
		{"IsWon", "Won"}, {"IsClosed", "Closed"}, {"LeadSource", "Lead Source"},
	},
	"Case": {
		{"CaseNumber", "Case Number"}, {"Subject", "Subject"}, {"Status", "Status"},
		{"Priority", "Priority"}, {"Origin", "Case Origin"}, {"ContactId", "Contact ID"},
		{"IsClosed", "Closed"}, {"ClosedDate", "Closed Date"},
	},
	"Campaign": {
		{"Name", "Campaign Name"}, {"Type", "Type"}, {"Status", "Status"},
		{"StartDate", "Start Date"}, {"EndDate", "End Date"}, {"IsActive", "Active"},
		{"BudgetedCost", "Budgeted Cost"},
	},
	"Event": {
		{"Subject", "Subject"}, {"StartDateTime", "Start"}, {"EndDateTime", "End"},
		{"WhoId", "Name ID"}, {"WhatId", "Related To ID"}, {"Location", "Location"},
	},
	"Task": {
		{"Subject", "Subject"}, {"Status", "Status"}, {"Priority", "Priority"},
		{"ActivityDate", "Due Date"}, {"WhoId", "Name ID"}, {"IsClosed", "Closed"},
	},
	"CampaignMember": {
		{"CampaignId", "Campaign ID"}, {"ContactId", "Contact ID"}, {"LeadId", "Lead ID"},
		{"Status", "Status"}, {"HasResponded", "Responded"}, {"Email", "Email"},
	},
	"ServiceAppointment": {
		{"AppointmentNumber", "Appointment Number"}, {"Status", "Status"},
		{"SchedStartTime", "Scheduled Start"}, {"SchedEndTime", "Scheduled End"},
		{"ParentRecordId", "Parent Record ID"},
	},
	"Quote": {
		{"Name", "Quote Name"}, {"Status", "Status"}, {"GrandTotal", "Grand Total"},
		{"ExpirationDate", "Expiration Date"}, {"OpportunityId", "Opportunity ID"}, {"Email", "Email"},
	},
	"Contract": {
		{"ContractNumber", "Contract Number"}, {"Status", "Status"}, {"StartDate", "Start Date"},
		{"ContractTerm", "Contract Term (months)"}, {"AccountId", "Account ID"},
	},
	"Order": {
		{"OrderNumber", "Order Number"}, {"Status", "Status"}, {"TotalAmount", "Order Amount"},
		{"EffectiveDate", "Order Start Date"}, {"AccountId", "Account ID"},
	},
	"Product2": {
		{"Name", "Product Name"}, {"ProductCode", "Product Code"}, {"Family", "Product Family"},
		{"IsActive", "Active"}, {"Description", "Description"},
	},
	"Pricebook2": {
		{"Name", "Price Book Name"}, {"IsActive", "Active"}, {"IsStandard", "Standard"},
		{"Description", "Description"},
	},
	"Asset": {
		{"Name", "Asset Name"}, {"SerialNumber", "Serial Number"}, {"Status", "Status"},
		{"InstallDate", "Install Date"}, {"Price", "Price"}, {"AccountId", "Account ID"},
	},
	"OpportunityLineItem": {
		{"OpportunityId", "Opportunity ID"}, {"Product2Id", "Product ID"}, {"Quantity", "Quantity"},
		{"UnitPrice", "Sales Price"}, {"TotalPrice", "Total Price"},
	},
}

var picklists = map[string][]api.PicklistValue{
	"Lead.Status": {
		{Label: "Open - Not Contacted", Value: "Open - Not Contacted"},
		{Label: "Working - Contacted", Value: "Working - Contacted"},
		{Label: "Closed - Converted", Value: "Closed - Converted"},
		{Label: "Closed - Not Converted", Value: "Closed - Not Converted"},
	},
	"Case.Status": {
		{Label: "New", Value: "New"}, {Label: "Working", Value: "Working"},
		{Label: "Escalated", Value: "Escalated"}, {Label: "Closed", Value: "Closed"},
	},
	"Case.Priority": {
		{Label: "High", Value: "High"}, {Label: "Medium", Value: "Medium"}, {Label: "Low", Value: "Low"},
	},
	"Opportunity.StageName": {
		{Label: "Prospecting", Value: "Prospecting"}, {Label: "Qualification", Value: "Qualification"},
		{Label: "Proposal/Price Quote", Value: "Proposal/Price Quote"},
		{Label: "Negotiation/Review", Value: "Negotiation/Review"},
		{Label: "Closed Won", Value: "Closed Won"}, {Label: "Closed Lost", Value: "Closed Lost"},
	},
	"FieldMapping.DataType": {
		{Label: api.DataTypeText, Value: api.DataTypeText},
		{Label: api.DataTypeNumber, Value: api.DataTypeNumber},
		{Label: api.DataTypeDate, Value: api.DataTypeDate},
		{Label: api.DataTypeBoolean, Value: api.DataTypeBoolean},
	},
}

// Entities returns the supported source entities.
func Entities() []string {
	out := make([]string, len(api.SourceEntities))
	copy(out, api.SourceEntities)
	return out
}

// IsEntity reports whether name is a supported source entity.
func IsEntity(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Fields returns the selectable fields of an entity sorted by label. Field
// names seen in ingested records but missing from the catalog are added with
// their API name as label.
func Fields(entity string, observed []string) ([]api.FieldOption, error) {
	std, ok := catalog[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	seen := make(map[string]bool, len(commonFields)+len(std)+len(observed))
	var out []api.FieldOption
	add := func(name, label string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, api.FieldOption{Label: label, Value: name})
	}

	for _, f := range commonFields {
		add(f.name, f.label)
	}
	for _, f := range std {
		add(f.name, f.label)
	}
	for _, name := range observed {
		add(name, name)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out, nil
}

// PicklistValues returns the allowed values of object.field.
func PicklistValues(object, fieldName string) ([]api.PicklistValue, error) {
	values, ok := picklists[object+"."+fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownPicklist, object, fieldName)
	}
	out := make([]api.PicklistValue, len(values))
	copy(out, values)
	return out, nil
}
