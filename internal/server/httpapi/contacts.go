package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"cipherchat/internal/models"
)

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.store.ListContacts(r.Context(), callerTag(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleRequestContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	target := normalizeTag(req.Tag)
	caller := callerTag(r)
	if target == "" || target == caller {
		writeError(w, http.StatusBadRequest, "valid contact tag is required")
		return
	}

	// the target must exist before a request can be recorded
	if _, err := s.store.GetUserByTag(r.Context(), target); err != nil {
		writeStoreError(w, err)
		return
	}

	contact, err := s.store.CreateContactRequest(r.Context(), caller, target)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

// contactID parses the {id} path segment.
func contactID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

func (s *Server) handleAcceptContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed contact id")
		return
	}
	if err := s.store.AcceptContact(r.Context(), id, callerTag(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRejectContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed contact id")
		return
	}
	if err := s.store.RejectContact(r.Context(), id, callerTag(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlockContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed contact id")
		return
	}
	if err := s.store.BlockContact(r.Context(), id, callerTag(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
