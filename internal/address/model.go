package address

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Address struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Candidate is built fresh on every verification call.
type Candidate struct {
	Entered   Address  `json:"entered"`
	Suggested *Address `json:"suggested,omitempty"`
	Messages  []string `json:"messages,omitempty"`
	Valid     bool     `json:"valid"`
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NeedsCorrection reports whether any normalized field of the suggestion
// differs from what was entered. Street2 only counts when the suggestion
// carries one.
func (c *Candidate) NeedsCorrection() bool {
	if c == nil || c.Suggested == nil {
		return false
	}
	e, s := c.Entered, *c.Suggested

	if normalize(e.Street1) != normalize(s.Street1) ||
		normalize(e.City) != normalize(s.City) ||
		normalize(e.State) != normalize(s.State) ||
		normalize(e.Zip) != normalize(s.Zip) {
		return true
	}
	if normalize(s.Street2) != "" && normalize(e.Street2) != normalize(s.Street2) {
		return true
	}
	if s.Country != "" && NormalizeCountry(e.Country) != NormalizeCountry(s.Country) {
		return true
	}
	return false
}

// Rejected is a hard rejection: the verifier marked the address invalid and
// offered nothing different to replace it with. An echo of the entered
// address is not an offer.
func (c *Candidate) Rejected() bool {
	return c != nil && !c.Valid && !c.NeedsCorrection()
}

// NeedsReview is true when the user has to look at the candidate before the
// wizard can move on.
func (c *Candidate) NeedsReview() bool {
	return c != nil && (!c.Valid || c.NeedsCorrection())
}

var countryAliases = map[string]string{
	"":                         "US",
	"us":                       "US",
	"usa":                      "US",
	"united states":            "US",
	"united states of america": "US",
}

// NormalizeCountry maps the free-text country the forms collect onto an ISO
// code; unknown values are upper-cased as given.
func NormalizeCountry(c string) string {
	if code, ok := countryAliases[normalize(c)]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(c))
}

// SavedAddress is an address book entry owned by the account service. This
// service only lists, creates and bumps its usage counter.
type SavedAddress struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OwnerEmail    string    `db:"owner_email" json:"-"`
	Label         string    `db:"label" json:"label"`
	RecipientName string    `db:"recipient_name" json:"recipient_name"`
	Company       string    `db:"company" json:"company,omitempty"`
	Street1       string    `db:"street1" json:"street1"`
	Street2       string    `db:"street2" json:"street2,omitempty"`
	City          string    `db:"city" json:"city"`
	State         string    `db:"state" json:"state"`
	Zip           string    `db:"zip" json:"zip"`
	Phone         string    `db:"phone" json:"phone,omitempty"`
	TimesUsed     int       `db:"times_used" json:"times_used"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

func (s SavedAddress) Address() Address {
	return Address{
		Name:    s.RecipientName,
		Company: s.Company,
		Street1: s.Street1,
		Street2: s.Street2,
		City:    s.City,
		State:   s.State,
		Zip:     s.Zip,
		Country: "US",
		Phone:   s.Phone,
	}
}

func NewSavedAddress(owner, label string, a Address) *SavedAddress {
	return &SavedAddress{
		ID:            uuid.New(),
		OwnerEmail:    owner,
		Label:         label,
		RecipientName: a.Name,
		Company:       a.Company,
		Street1:       a.Street1,
		Street2:       a.Street2,
		City:          a.City,
		State:         a.State,
		Zip:           a.Zip,
		Phone:         a.Phone,
	}
}
