package core

import "strings"

// SubscriberData is the optional profile sent along with a subscription.
type SubscriberData struct {
	Organization string `json:"organization" yaml:"organization"`
	FirstName    string `json:"first_name" yaml:"first_name"`
	LastName     string `json:"last_name" yaml:"last_name"`
	Address1     string `json:"address_1" yaml:"address_1"`
	Address2     string `json:"address_2" yaml:"address_2"`
	City         string `json:"city" yaml:"city"`
	State        string `json:"state" yaml:"state"`
	PostalCode   string `json:"postal_code" yaml:"postal_code"`
	Country      string `json:"country" yaml:"country"`
	Phone        string `json:"phone" yaml:"phone"`
}

// MergeFields is subscriber data keyed by the backend's field names. The
// address, when present, is a nested map[string]string.
type MergeFields map[string]any

// FieldNames maps SubscriberData onto backend field names.
type FieldNames struct {
	Organization string
	FirstName    string
	LastName     string
	Phone        string

	// Address is the key of the nested address object.
	Address    string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// DefaultFieldNames is used for drivers that do not declare their own.
var DefaultFieldNames = FieldNames{
	Organization: "ORG",
	FirstName:    "FIRST_NAME",
	LastName:     "LAST_NAME",
	Phone:        "PHONE",
	Address:      "ADDRESS",
	Address1:     "addr1",
	Address2:     "addr2",
	City:         "city",
	State:        "state",
	PostalCode:   "zip",
	Country:      "country",
}

// FieldNamer is implemented by subscription drivers with their own field
// naming.
type FieldNamer interface {
	FieldNames() FieldNames
}

// Normalize drops empty fields and renames the rest. A nil receiver yields nil.
func (d *SubscriberData) Normalize(names FieldNames) MergeFields {
	if d == nil {
		return nil
	}

	fields := MergeFields{}
	put := func(m map[string]string, key, value string) {
		if value = strings.TrimSpace(value); value != "" && key != "" {
			m[key] = value
		}
	}

	flat := map[string]string{}
	put(flat, names.Organization, d.Organization)
	put(flat, names.FirstName, d.FirstName)
	put(flat, names.LastName, d.LastName)
	put(flat, names.Phone, d.Phone)
	for k, v := range flat {
		fields[k] = v
	}

	address := map[string]string{}
	put(address, names.Address1, d.Address1)
	put(address, names.Address2, d.Address2)
	put(address, names.City, d.City)
	put(address, names.State, d.State)
	put(address, names.PostalCode, d.PostalCode)
	put(address, names.Country, d.Country)
	if len(address) > 0 && names.Address != "" {
		fields[names.Address] = address
	}

	return fields
}
