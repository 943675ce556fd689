package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/credential"
)

// createCredentialRequest is the body of POST /credentials. Serial may be
// a string or an integer so badge readers that emit numbers can be enrolled
// with the same value they later present.
type createCredentialRequest struct {
	ID      string           `json:"id,omitempty"`
	Name    string           `json:"name"`
	Serial  any              `json:"serial"`
	Access  credential.IDSet `json:"access"`
	Custody credential.IDSet `json:"custody"`
}

// updateCredentialRequest is the body of PATCH /credentials/{id}. Absent
// fields are left unchanged.
type updateCredentialRequest struct {
	Name   *string           `json:"name"`
	Access *credential.IDSet `json:"access"`
	Serial json.RawMessage   `json:"serial"`
}

// handleListCredentials returns every credential ordered by name.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list credentials", "error", err)
		writeInternalError(w, "failed to list credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds, "count": len(creds)})
}

// handleGetCredential returns a single credential by ID.
func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := s.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCredentialError(w, err, "failed to get credential")
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// handleGetCredentialBySerial looks a credential up the way the door
// endpoints do.
func (s *Server) handleGetCredentialBySerial(w http.ResponseWriter, r *http.Request) {
	cred, err := s.store.FindBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		s.writeCredentialError(w, err, "failed to get credential")
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// handleCreateCredential enrols a new credential.
func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var body createCredentialRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	serial, err := credential.ParseID(body.Serial)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "serial: "+err.Error())
		return
	}

	cred := &credential.Credential{
		ID:      body.ID,
		Name:    body.Name,
		Serial:  string(serial),
		Access:  body.Access,
		Custody: body.Custody,
	}
	if err := s.store.Create(r.Context(), cred); err != nil {
		s.writeCredentialError(w, err, "failed to create credential")
		return
	}

	s.logger.Info("credential created", "credential_id", cred.ID, "serial", cred.Serial)
	writeJSON(w, http.StatusCreated, cred)
}

// handleUpdateCredential changes the name or access set. Custody is never
// touched here so revoking access cannot strand a key already issued.
func (s *Server) handleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var body updateCredentialRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(body.Serial) > 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "serial cannot be changed")
		return
	}

	cred, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.writeCredentialError(w, err, "failed to get credential")
		return
	}
	if body.Name != nil {
		cred.Name = *body.Name
	}
	accessChanged := body.Access != nil && !cred.Access.Equal(*body.Access)
	if body.Access != nil {
		cred.Access = *body.Access
	}

	if err := s.store.Update(ctx, cred); err != nil {
		s.writeCredentialError(w, err, "failed to update credential")
		return
	}

	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.writeCredentialError(w, err, "failed to get credential")
		return
	}

	s.logger.Info("credential updated", "credential_id", id, "access_changed", accessChanged)
	if accessChanged {
		if held := heldWithoutAccess(updated); held.Len() > 0 {
			s.logger.Warn("credential holds keys it is no longer entitled to",
				"credential_id", id,
				"keys", held.Strings(),
			)
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

// heldWithoutAccess returns the keys in custody that are no longer in the
// access set. They stay returnable.
func heldWithoutAccess(c *credential.Credential) credential.IDSet {
	out := credential.NewIDSet()
	for key := range c.Custody {
		if !c.Access.Has(key) {
			out.Add(key)
		}
	}
	return out
}

// handleDeleteCredential removes a credential together with its custody.
func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeCredentialError(w, err, "failed to delete credential")
		return
	}

	s.logger.Info("credential deleted", "credential_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// writeCredentialError maps store errors onto admin responses.
func (s *Server) writeCredentialError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, credential.ErrCredentialNotFound):
		writeNotFound(w, "credential not found")
	case errors.Is(err, credential.ErrSerialExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "serial already enrolled")
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
