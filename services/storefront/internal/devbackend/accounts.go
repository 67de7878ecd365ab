package devbackend

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"heritagecoffee/internal/usertoken"
	"heritagecoffee/pkg/auth"
	"heritagecoffee/pkg/domain"
)

var (
	errEmailTaken   = errors.New("email already used")
	errInvalidEmail = errors.New("invalid email")
	errMissingField = errors.New("missing field")
)

type ormFieldError struct {
	Message       string `json:"message"`
	Type          string `json:"type"`
	Path          string `json:"path"`
	Value         string `json:"value"`
	ValidatorName string `json:"validatorName,omitempty"`
}

type ormValidationError struct {
	Name   string          `json:"name"`
	Errors []ormFieldError `json:"errors"`
}

func (s *Server) issueToken(userID int64) (string, error) {
	return s.tokens.Issue(strconv.FormatInt(userID, 10))
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := usertoken.FromAuthorization(r.Header.Get("Authorization"))
	if !ok {
		return domain.User{}, false
	}
	subject, err := s.tokens.VerifySubject(token)
	if err != nil {
		return domain.User{}, false
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return domain.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.User{}, false
	}
	return acc.user, true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}

func (s *Server) createAccount(req domain.SignUpRequest) (domain.User, error) {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" || req.Password == "" {
		return domain.User{}, errMissingField
	}
	email := normalizeEmail(req.EmailAddress)
	if !validEmail(email) {
		return domain.User{}, errInvalidEmail
	}
	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return domain.User{}, errEmailTaken
	}
	s.nextUserID++
	user := domain.User{
		ID:           s.nextUserID,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		EmailAddress: email,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	s.accounts[user.ID] = &account{user: user, hash: hash}
	s.byEmail[email] = user.ID
	s.cartForLocked(user.ID)
	return user, nil
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r) {
		s.audit(r, "devbackend.signup", "rate_limited")
		return
	}
	var req domain.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.createAccount(req)
	switch {
	case errors.Is(err, errInvalidEmail):
		writeJSON(w, http.StatusBadRequest, ormValidationError{
			Name: "SequelizeValidationError",
			Errors: []ormFieldError{{
				Message:       "Validation isEmail on emailAddress failed",
				Type:          "Validation error",
				Path:          "emailAddress",
				Value:         req.EmailAddress,
				ValidatorName: "isEmail",
			}},
		})
		return
	case errors.Is(err, errEmailTaken):
		writeError(w, http.StatusConflict, msgEmailTaken)
		return
	case errors.Is(err, errMissingField):
		writeError(w, http.StatusBadRequest, "firstName, lastName, emailAddress and password are required")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.audit(r, "devbackend.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r) {
		s.audit(r, "devbackend.signin", "rate_limited")
		return
	}
	var req domain.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email := normalizeEmail(req.EmailAddress)
	s.mu.Lock()
	id, ok := s.byEmail[email]
	var acc account
	if ok {
		acc = *s.accounts[id]
	}
	s.mu.Unlock()
	if !ok {
		s.audit(r, "devbackend.signin", "fail", "reason", "unknown_email")
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if !auth.CheckPassword(req.Password, acc.hash) {
		s.audit(r, "devbackend.signin", "fail", "reason", "bad_password", "user_id", id)
		writeText(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	token, err := s.issueToken(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.audit(r, "devbackend.signin", "success", "user_id", id)
	writeJSON(w, http.StatusOK, domain.SignInResponse{Token: token, User: acc.user})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, ok := pathID(r, "id")
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if id != caller.ID {
		writeText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[id]
	var user domain.User
	if ok {
		user = acc.user
	}
	s.mu.Unlock()
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, ok := pathID(r, "id")
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if id != caller.ID {
		writeText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	var update domain.UserUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var hash []byte
	if update.Password != nil && *update.Password != "" {
		h, err := auth.HashPassword(*update.Password, s.bcryptCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not hash password")
			return
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	next := acc.user
	if update.FirstName != nil && strings.TrimSpace(*update.FirstName) != "" {
		next.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil && strings.TrimSpace(*update.LastName) != "" {
		next.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.EmailAddress != nil {
		email := normalizeEmail(*update.EmailAddress)
		if !validEmail(email) {
			writeError(w, http.StatusBadRequest, "Validation isEmail on emailAddress failed")
			return
		}
		if owner, taken := s.byEmail[email]; taken && owner != id {
			writeError(w, http.StatusConflict, msgEmailTaken)
			return
		}
		delete(s.byEmail, acc.user.EmailAddress)
		s.byEmail[email] = id
		next.EmailAddress = email
	}
	now := s.now().UTC().Truncate(time.Second)
	next.UpdatedAt = &now
	acc.user = next
	if hash != nil {
		acc.hash = hash
	}
	writeJSON(w, http.StatusOK, next)
}
