package api

import (
	"io"
	"net/http"

	"monarchmail-be/internal/mailbox"
	"monarchmail-be/internal/upload"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"github.com/go-chi/chi/v5"
)

type mailboxView struct {
	ID string `json:"id,omitempty"`
	wizard.View
	Products []mailbox.Product `json:"products"`
	Totals   mailbox.Totals    `json:"totals"`
}

func mailboxViewOf(s *mailbox.Session) mailboxView {
	products, totals := s.Quote()
	if products == nil {
		products = []mailbox.Product{}
	}
	return mailboxView{View: s.Snapshot(), Products: products, Totals: totals}
}

func renderMailbox(s *mailbox.Session) any { return mailboxViewOf(s) }

type mailboxHandler struct {
	svc    *mailbox.Service
	wizard *wizardHandler[*mailbox.Session]
}

func (h *mailboxHandler) routes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		h.wizard.mount(r)
		r.Post("/documents/{field}", h.attachDocument)
	})
}

func (h *mailboxHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.svc.NewSession(utils.GetUserEmailFromContext(ctx), utils.GetUserNameFromContext(ctx))
	id := h.wizard.sessions.Add(owner(r), sess)

	view := mailboxViewOf(sess)
	view.ID = id.String()
	utils.WriteJSON(w, http.StatusCreated, view)
}

// attachDocument reads one multipart "file" part. Size is enforced again by
// the session so an oversized part is reported as a field error.
func (h *mailboxHandler) attachDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizard.load(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+maxBodyBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, errBadBody)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize+1))
	if err != nil {
		writeError(w, r, errBadBody)
		return
	}

	if err := sess.AttachDocument(chi.URLParam(r, "field"), hdr.Filename, hdr.Header.Get("Content-Type"), data); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, renderMailbox(sess))
}
