package mailbox

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"monarchmail-be/internal/payment"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"github.com/shopspring/decimal"
)

const FlowName = "mailbox"

func (s *Session) flow() wizard.Flow {
	return wizard.Flow{
		Name: FlowName,
		Steps: []wizard.Step{
			{
				Name: StepUseType,
				Validate: wizard.Rules(
					wizard.Required(StepUseType, "use_type"),
					wizard.OneOf(StepUseType, "use_type", UsePersonal, UseBusiness, UseBoth),
				),
			},
			{
				Name: StepApplicant,
				Validate: wizard.Rules(
					wizard.Required(StepApplicant,
						"first_name", "last_name", "email", "phone",
						"street1", "city", "state", "zip",
						"how_heard", "id_submission_method",
					),
					wizard.OneOf(StepApplicant, "id_submission_method", IDUpload, IDBringLater),
					wizard.RequiredWhen(uploadsIDs, StepApplicant, DocPrimaryID, DocSecondaryID),
					wizard.Check("email", "Email must be a valid address", func(snap wizard.Snapshot) bool {
						v := strings.TrimSpace(snap.Value(StepApplicant, "email"))
						if v == "" {
							return true
						}
						_, err := mail.ParseAddress(v)
						return err == nil
					}),
				),
				Addresses: []wizard.AddressField{{Role: "applicant"}},
				Hook:      s.uploadDocuments,
				Persist:   true,
			},
			{
				Name: StepMailbox,
				Validate: wizard.Rules(
					wizard.Required(StepMailbox, "size", "duration"),
					wizard.Check("size", "Please select a mailbox size and duration.", s.selectionPriced),
				),
			},
			{
				Name: StepUSPS1583,
				Validate: wizard.Rules(
					wizard.Required(StepUSPS1583,
						"photo_id_type", "photo_id_number", "photo_id_issuing_entity", "address_id_type",
					),
					wizard.RequiredWhen(isBusiness, StepUSPS1583, "business_name", "business_type"),
				),
				Hook: s.export1583,
			},
			{
				Name: StepReview,
				Validate: wizard.Rules(
					wizard.Check("agree_to_terms", "Please agree to the terms and conditions", func(snap wizard.Snapshot) bool {
						return snap.Value(StepReview, "agree_to_terms") == "true"
					}),
					wizard.Check("coupon_code", "Invalid coupon code.", func(snap wizard.Snapshot) bool {
						code := strings.TrimSpace(snap.Value(StepReview, "coupon_code"))
						if code == "" {
							return true
						}
						_, ok := s.svc.catalog.Coupon(code)
						return ok
					}),
				),
			},
		},
		Encode:         s.encode,
		Checkout:       s.checkout,
		BeforeCheckout: s.notifyApplication,
	}
}

func uploadsIDs(snap wizard.Snapshot) bool {
	return snap.Value(StepApplicant, "id_submission_method") == IDUpload
}

func isBusiness(snap wizard.Snapshot) bool {
	u := snap.Value(StepUseType, "use_type")
	return u == UseBusiness || u == UseBoth
}

// selectionPriced leaves blanks to Required and rejects size/term pairs the
// catalogue does not sell, such as a small business box.
func (s *Session) selectionPriced(snap wizard.Snapshot) bool {
	size := snap.Value(StepMailbox, "size")
	duration := snap.Value(StepMailbox, "duration")
	if strings.TrimSpace(size) == "" || strings.TrimSpace(duration) == "" {
		return true
	}
	sel := selectionFrom(snap.Steps)
	if sel.Months == 0 {
		return false
	}
	_, ok := s.svc.catalog.Price(sel.Category(), sel.Size, sel.Months, s.svc.now())
	return ok
}

func selectionFrom(steps map[wizard.StepName]wizard.Fields) Selection {
	months, _ := strconv.Atoi(strings.TrimSpace(steps[StepMailbox]["duration"]))
	return Selection{
		UseType: steps[StepUseType]["use_type"],
		Size:    strings.ToLower(strings.TrimSpace(steps[StepMailbox]["size"])),
		Months:  months,
		AddKey:  steps[StepMailbox]["add_key"] == "true",
		Coupon:  strings.TrimSpace(steps[StepReview]["coupon_code"]),
	}
}

func idMethodLabel(method string) string {
	if method == IDUpload {
		return "Documents Uploaded"
	}
	return "Will bring to store"
}

func howHeard(app wizard.Fields) string {
	if app["referral_detail"] != "" {
		return fmt.Sprintf("%s (%s)", app["how_heard"], app["referral_detail"])
	}
	return app["how_heard"]
}

func productList(products []Product) string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, strings.TrimSpace(p.Name+" "+p.Duration))
	}
	return strings.Join(names, ", ")
}

func orNA(v string) string {
	return utils.FirstNonEmpty(v, "N/A")
}

func form1583Notes(d wizard.Draft) string {
	u := d.Steps[StepUSPS1583]
	var b strings.Builder
	b.WriteString("--- USPS Form 1583 Details ---\n")
	fmt.Fprintf(&b, "Photo ID Type: %s\n", orNA(u["photo_id_type"]))
	fmt.Fprintf(&b, "Photo ID Number: %s\n", orNA(u["photo_id_number"]))
	fmt.Fprintf(&b, "Photo ID Issuing Entity: %s\n", orNA(u["photo_id_issuing_entity"]))
	fmt.Fprintf(&b, "Photo ID Expiration: %s\n", orNA(u["photo_id_expiration"]))
	fmt.Fprintf(&b, "Address ID Type: %s\n", orNA(u["address_id_type"]))
	fmt.Fprintf(&b, "Additional Recipients: %s\n", utils.FirstNonEmpty(u["additional_recipients"], "None"))
	if ut := d.Value(StepUseType, "use_type"); ut == UseBusiness || ut == UseBoth {
		fmt.Fprintf(&b, "Business Name: %s\n", orNA(u["business_name"]))
		fmt.Fprintf(&b, "Business Type: %s\n", orNA(u["business_type"]))
		fmt.Fprintf(&b, "Business Phone: %s\n", orNA(u["business_phone"]))
		fmt.Fprintf(&b, "Business Address: %s, %s, %s %s\n",
			orNA(u["business_street"]), orNA(u["business_city"]), orNA(u["business_state"]), orNA(u["business_zip"]))
		fmt.Fprintf(&b, "Business Registration Place: %s\n", orNA(u["business_registration_place"]))
	}
	b.WriteString("--- End USPS Form 1583 Details ---")
	return b.String()
}

// notes rebuilds the reservation notes from scratch for the draft's stage.
func (s *Session) notes(d wizard.Draft, products []Product, totals Totals) string {
	app := d.Steps[StepApplicant]
	lines := []string{
		"How heard: " + howHeard(app),
		"Address validated: Yes",
		"ID Submission Method: " + idMethodLabel(app["id_submission_method"]),
	}
	if d.Step >= 3 && len(products) > 0 {
		lines = append(lines, "Selected products: "+productList(products))
	}
	if d.Step >= 4 && d.Value(StepUSPS1583, "photo_id_type") != "" {
		lines = append(lines, form1583Notes(d))
	}
	if d.Step == 5 {
		lines = append(lines,
			"Mailbox Key: "+yesNo(d.Value(StepMailbox, "add_key") == "true"),
			"Coupon Code: "+utils.FirstNonEmpty(d.Value(StepReview, "coupon_code"), "None"),
			"Subtotal: $"+totals.Subtotal.StringFixed(2),
			"Discount: $"+totals.Discount.StringFixed(2),
			"Tax: $"+totals.Tax.StringFixed(2),
			"Total: $"+totals.Total.StringFixed(2),
		)
	}
	return strings.Join(lines, "\n")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func (s *Session) encode(d wizard.Draft) (wizard.Record, error) {
	app := d.Steps[StepApplicant]
	sel := selectionFrom(d.Steps)
	products, totals := s.svc.catalog.Quote(sel, s.svc.now())

	mailboxType := sel.UseType
	if mailboxType == UseBoth {
		mailboxType = UseBusiness
	}
	size := sel.Size
	if size == "" {
		size = "medium"
	}

	rec := Reservation{
		CustomerName:  strings.TrimSpace(app["first_name"] + " " + app["last_name"]),
		Email:         app["email"],
		Phone:         app["phone"],
		Street1:       app["street1"],
		Street2:       app["street2"],
		City:          app["city"],
		State:         app["state"],
		Zip:           app["zip"],
		Country:       utils.FirstNonEmpty(app["country"], "United States"),
		BusinessName:  d.Value(StepUSPS1583, "business_name"),
		MailboxType:   mailboxType,
		PreferredSize: size,
		CouponCode:    sel.Coupon,
		Notes:         s.notes(d, products, totals),
		Status:        "pending",
		PaymentStatus: "pending",
		StartDate:     s.startDate(),
	}
	if d.Step >= 3 {
		rec.Products = products
	}
	if d.Step == 5 {
		rec.Totals = &totals
	}
	return rec, nil
}

func (s *Session) checkout(d wizard.Draft) (payment.CheckoutRequest, error) {
	sel := selectionFrom(d.Steps)
	products, totals := s.svc.catalog.Quote(sel, s.svc.now())
	if len(products) == 0 {
		return payment.CheckoutRequest{}, fmt.Errorf("mailbox: nothing selected")
	}

	items := make([]payment.LineItem, 0, len(products)+1)
	for _, p := range products {
		items = append(items, payment.LineItem{
			Name:        p.Name,
			Description: p.Duration,
			Amount:      p.Price,
			Quantity:    1,
		})
	}
	if totals.Tax.IsPositive() {
		items = append(items, payment.LineItem{
			Name:     "Sales tax (" + s.svc.catalog.TaxRate.Mul(decimal.NewFromInt(100)).String() + "%)",
			Amount:   totals.Tax,
			Quantity: 1,
		})
	}

	email := utils.FirstNonEmpty(d.Value(StepApplicant, "email"), d.Owner)
	return payment.CheckoutRequest{
		Type:          payment.TypeMailboxRental,
		CustomerEmail: email,
		Items:         items,
		CouponCode:    sel.Coupon,
		Discount:      totals.Discount,
		Metadata: map[string]string{
			"reservation_id": recordIDString(d.RecordID),
		},
	}, nil
}

func (s *Session) notifyApplication(ctx context.Context, d wizard.Draft) {
	app := d.Steps[StepApplicant]
	sel := selectionFrom(d.Steps)
	products, totals := s.svc.catalog.Quote(sel, s.svc.now())

	var b strings.Builder
	b.WriteString("New mailbox application received:\n\n")
	fmt.Fprintf(&b, "Customer: %s\n", fullName(app))
	fmt.Fprintf(&b, "Email: %s\nPhone: %s\n", app["email"], app["phone"])
	fmt.Fprintf(&b, "Address: %s, %s, %s %s\n", app["street1"], app["city"], app["state"], app["zip"])
	if app["street2"] != "" {
		fmt.Fprintf(&b, "Apt/Suite: %s\n", app["street2"])
	}
	fmt.Fprintf(&b, "Country: %s\n\n", utils.FirstNonEmpty(app["country"], "United States"))
	fmt.Fprintf(&b, "Mailbox Type: %s\n", sel.UseType)
	fmt.Fprintf(&b, "How Heard: %s\n", howHeard(app))
	fmt.Fprintf(&b, "ID Submission Method: %s\n", idMethodLabel(app["id_submission_method"]))
	fmt.Fprintf(&b, "Mailbox Key: %s\n\n", yesNo(sel.AddKey))
	b.WriteString("Selected Products:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(p.Name+" "+p.Duration))
	}
	b.WriteString("\n" + form1583Notes(d) + "\n\n")
	fmt.Fprintf(&b, "Subtotal: $%s\n", totals.Subtotal.StringFixed(2))
	if totals.Discount.IsPositive() {
		fmt.Fprintf(&b, "Coupon Discount: -$%s\n", totals.Discount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Tax: $%s\nTotal: $%s\n\n", totals.Tax.StringFixed(2), totals.Total.StringFixed(2))
	fmt.Fprintf(&b, "Reservation ID: %s\n", recordIDString(d.RecordID))
	b.WriteString("Customer will complete payment via Stripe.\n")

	s.svc.notifier.Send(ctx, notifyMessage(s.svc.adminEmail,
		"New Mailbox Application - "+strings.TrimSpace(app["first_name"]+" "+app["last_name"]),
		b.String(),
	))
}

func fullName(app wizard.Fields) string {
	parts := []string{app["first_name"]}
	if app["middle_initial"] != "" {
		parts = append(parts, app["middle_initial"])
	}
	parts = append(parts, app["last_name"])
	return strings.TrimSpace(strings.Join(parts, " "))
}
