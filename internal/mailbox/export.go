package mailbox

import (
	"bytes"
	"encoding/csv"
	"strings"
	"time"

	"monarchmail-be/internal/wizard"

	"github.com/google/uuid"
)

var form1583Headers = []string{
	"pmb", "reservation_id",
	"app_first", "app_middle", "app_last", "app_dob",
	"photo_id_type", "photo_id_number", "photo_id_exp", "photo_id_issuing_entity",
	"addr_id_type", "addr_line", "addr_city", "addr_state", "addr_zip", "addr_country",
	"mailbox_use_type",
	"business_name", "business_type", "business_phone", "business_addr",
	"additional_recipients",
	"exported_at",
}

// PMBLabel names a reservation's private mailbox until one is assigned.
func PMBLabel(id uuid.UUID) string {
	if id == uuid.Nil {
		return "PMB_pending"
	}
	return "PMB_" + id.String()
}

// form1583Row maps the draft onto the USPS Form 1583 export columns.
// Date of birth is not collected and stays empty.
func form1583Row(d wizard.Draft, exportedAt time.Time) map[string]string {
	app := d.Steps[StepApplicant]
	usps := d.Steps[StepUSPS1583]

	var bizAddr []string
	for _, f := range []string{"business_street", "business_city", "business_state", "business_zip"} {
		if v := strings.TrimSpace(usps[f]); v != "" {
			bizAddr = append(bizAddr, v)
		}
	}

	return map[string]string{
		"pmb":                     PMBLabel(d.RecordID),
		"reservation_id":          recordIDString(d.RecordID),
		"app_first":               app["first_name"],
		"app_middle":              app["middle_initial"],
		"app_last":                app["last_name"],
		"app_dob":                 "",
		"photo_id_type":           usps["photo_id_type"],
		"photo_id_number":         usps["photo_id_number"],
		"photo_id_exp":            usps["photo_id_expiration"],
		"photo_id_issuing_entity": usps["photo_id_issuing_entity"],
		"addr_id_type":            usps["address_id_type"],
		"addr_line":               app["street1"],
		"addr_city":               app["city"],
		"addr_state":              app["state"],
		"addr_zip":                app["zip"],
		"addr_country":            "US",
		"mailbox_use_type":        d.Value(StepUseType, "use_type"),
		"business_name":           usps["business_name"],
		"business_type":           usps["business_type"],
		"business_phone":          usps["business_phone"],
		"business_addr":           strings.Join(bizAddr, ", "),
		"additional_recipients":   usps["additional_recipients"],
		"exported_at":             exportedAt.UTC().Format(time.RFC3339),
	}
}

// Form1583CSV renders a header line and one data row.
func Form1583CSV(d wizard.Draft, exportedAt time.Time) ([]byte, error) {
	row := form1583Row(d, exportedAt)
	values := make([]string, len(form1583Headers))
	for i, h := range form1583Headers {
		values[i] = row[h]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(form1583Headers); err != nil {
		return nil, err
	}
	if err := w.Write(values); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func recordIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
