package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/notify"
	"monarchmail-be/internal/upload"
	"monarchmail-be/internal/wizard"

	"go.uber.org/zap"
)

type documentError struct{ msg string }

func (e *documentError) Error() string       { return "mailbox: " + e.msg }
func (e *documentError) Kind() string        { return apperr.KindValidation }
func (e *documentError) UserMessage() string { return e.msg }

var (
	ErrUnknownDocument = &documentError{"Only primary_id and secondary_id documents can be attached."}
	ErrEmptyDocument   = &documentError{"The uploaded document is empty."}
	ErrDocumentTooBig  = &documentError{"The uploaded document is too large."}
)

type Service struct {
	catalog    *Catalog
	deps       wizard.Deps
	uploader   upload.Uploader
	notifier   notify.Sender
	adminEmail string
	now        func() time.Time
}

func NewService(catalog *Catalog, deps wizard.Deps, uploader upload.Uploader, notifier notify.Sender, adminEmail string) *Service {
	return &Service{
		catalog:    catalog,
		deps:       deps,
		uploader:   uploader,
		notifier:   notifier,
		adminEmail: adminEmail,
		now:        time.Now,
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

type document struct {
	name        string
	contentType string
	data        []byte
}

// Session is one customer's reservation wizard plus the ID documents they
// attached but that have not been uploaded yet.
type Session struct {
	*wizard.Controller
	svc *Service

	mu   sync.Mutex
	docs map[string]document
}

// NewSession starts a wizard prefilled from the signed-in account.
func (s *Service) NewSession(owner, fullName string) *Session {
	sess := &Session{svc: s, docs: map[string]document{}}
	sess.Controller = wizard.NewController(sess.flow(), s.deps, owner)

	first, last, _ := strings.Cut(strings.TrimSpace(fullName), " ")
	_ = sess.Set(StepApplicant, wizard.Fields{
		"first_name": first,
		"last_name":  strings.TrimSpace(last),
		"email":      owner,
		"country":    "United States",
	})
	return sess
}

// AttachDocument holds an ID document until the applicant step uploads it.
// Replacing a document clears any URL from an earlier upload.
func (s *Session) AttachDocument(field, name, contentType string, data []byte) error {
	if field != DocPrimaryID && field != DocSecondaryID {
		return ErrUnknownDocument
	}
	if len(data) == 0 {
		return ErrEmptyDocument
	}
	if len(data) > upload.MaxFileSize {
		return ErrDocumentTooBig
	}

	if err := s.Set(StepApplicant, wizard.Fields{field: name, field + "_url": ""}); err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[field] = document{name: name, contentType: contentType, data: data}
	s.mu.Unlock()
	return nil
}

// Quote prices the current selection.
func (s *Session) Quote() ([]Product, Totals) {
	return s.svc.catalog.Quote(selectionFrom(s.Draft().Steps), s.svc.now())
}

func (s *Session) startDate() string {
	return s.svc.now().Format(time.DateOnly)
}

var docLabels = map[string]string{
	DocPrimaryID:   "primary ID",
	DocSecondaryID: "secondary ID",
}

// uploadDocuments uploads each attached ID once. URLs come back as step
// fields, so a retried transition skips documents already stored.
func (s *Session) uploadDocuments(ctx context.Context, d wizard.Draft) (wizard.Fields, error) {
	app := d.Steps[StepApplicant]
	if app["id_submission_method"] != IDUpload {
		return nil, nil
	}

	log := logger.FromCtx(ctx).With(
		zap.String("service", "Mailbox"),
		zap.String("method", "uploadDocuments"),
	)

	out := wizard.Fields{}
	uploaded := false
	for _, field := range []string{DocPrimaryID, DocSecondaryID} {
		if app[field+"_url"] != "" {
			continue
		}

		s.mu.Lock()
		doc, ok := s.docs[field]
		s.mu.Unlock()
		if !ok {
			return out, &wizard.ValidationError{Step: StepApplicant, Fields: []wizard.FieldError{{
				Field:   field,
				Message: "Please upload both your primary and secondary ID documents.",
			}}}
		}

		name := fmt.Sprintf("%s_%s_%s", strings.ToLower(app["last_name"]), field, doc.name)
		url, err := s.svc.uploader.Upload(ctx, name, doc.contentType, bytes.NewReader(doc.data))
		if err != nil {
			return out, &wizard.HookError{
				Adapter: "upload",
				Message: fmt.Sprintf("Failed to upload %s document. Please try again.", docLabels[field]),
				Err:     err,
			}
		}
		out[field+"_url"] = url
		app[field+"_url"] = url
		uploaded = true
	}

	if uploaded {
		log.Info("ID documents uploaded")
		s.svc.notifier.Send(ctx, notifyMessage(s.svc.adminEmail,
			"ID Documents for New Mailbox Application - "+strings.TrimSpace(app["first_name"]+" "+app["last_name"]),
			fmt.Sprintf("New mailbox application with ID documents uploaded.\n\n"+
				"Customer: %s %s\nEmail: %s\nPhone: %s\n\n"+
				"Primary ID URL: %s\nSecondary ID URL: %s\n\n"+
				"Please review these documents for the mailbox application.\n",
				app["first_name"], app["last_name"], app["email"], app["phone"],
				app[DocPrimaryID+"_url"], app[DocSecondaryID+"_url"],
			),
		))
	}
	return out, nil
}

// export1583 sends the admin a CSV of the USPS Form 1583 answers. It never
// blocks the transition.
func (s *Session) export1583(ctx context.Context, d wizard.Draft) (wizard.Fields, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Mailbox"),
		zap.String("method", "export1583"),
		zap.String("record_id", d.RecordID.String()),
	)

	pmb := PMBLabel(d.RecordID)
	csvData, err := Form1583CSV(d, s.svc.now())
	if err != nil {
		log.Warn("failed building 1583 csv", zap.Error(err))
		return nil, nil
	}

	url, err := s.svc.uploader.Upload(ctx, pmb+"_1583_data.csv", "text/csv", bytes.NewReader(csvData))
	if err != nil {
		log.Warn("failed uploading 1583 csv", zap.Error(err))
		return nil, nil
	}

	app := d.Steps[StepApplicant]
	s.svc.notifier.Send(ctx, notifyMessage(s.svc.adminEmail,
		fmt.Sprintf("Monarch Mail - 1583 CSV for %s %s (%s)", app["first_name"], app["last_name"], pmb),
		fmt.Sprintf("New 1583 artifacts generated from the mailbox reservation.\n\n"+
			"PMB / Label: %s\nReservation ID: %s\n\nCSV: %s\n\n"+
			"Applicant:\n- %s\n- %s | %s\n\n%s\n\nGenerated at: %s\n",
			pmb, recordIDString(d.RecordID), url,
			fullName(app), app["email"], app["phone"],
			form1583Notes(d), s.svc.now().Format(time.RFC1123),
		),
	))
	log.Info("1583 export sent", zap.String("csv_url", url))
	return nil, nil
}

func notifyMessage(to, subject, body string) notify.Message {
	return notify.Message{To: to, Subject: subject, Body: body}
}
