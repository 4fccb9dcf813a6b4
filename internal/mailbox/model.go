package mailbox

const (
	StepUseType   = "use_type"
	StepApplicant = "applicant"
	StepMailbox   = "mailbox"
	StepUSPS1583  = "usps_1583"
	StepReview    = "review"
)

const (
	UsePersonal = "personal"
	UseBusiness = "business"
	UseBoth     = "both"

	CategoryPersonal = "personal"
	CategoryBusiness = "business"

	IDUpload     = "upload"
	IDBringLater = "bring_later"
)

// Document fields accepted by AttachDocument.
const (
	DocPrimaryID   = "primary_id"
	DocSecondaryID = "secondary_id"
)

const RecordKind = "mailbox_reservation"

// Reservation is the persisted form of a mailbox draft.
type Reservation struct {
	CustomerName  string    `json:"customer_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Street1       string    `json:"street_address"`
	Street2       string    `json:"street_address_2,omitempty"`
	City          string    `json:"city"`
	State         string    `json:"state"`
	Zip           string    `json:"zip_code"`
	Country       string    `json:"country"`
	BusinessName  string    `json:"business_name,omitempty"`
	MailboxType   string    `json:"mailbox_type"`
	PreferredSize string    `json:"preferred_size"`
	Products      []Product `json:"products,omitempty"`
	Totals        *Totals   `json:"totals,omitempty"`
	CouponCode    string    `json:"coupon_code,omitempty"`
	Notes         string    `json:"notes"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	StartDate     string    `json:"start_date"`
}

func (Reservation) Kind() string { return RecordKind }
