package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/opweb/challenge"
	"github.com/jmcleod/opweb/forum"
)

const maxBodySize = 1 << 20

// decodeBody reads a JSON request body into v. It writes the error response
// and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBodyTooLarge)
		} else {
			writeError(w, http.StatusBadRequest, codeInvalidBody)
		}
		return false
	}
	return true
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// PublicSettings handles GET /settings/public.
func (a *API) PublicSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.forum.PublicSettings()
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}

// UpdateSettings handles PUT /settings.
func (a *API) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := a.forum.UpdateSettings(req.Title, req.Logo)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	user, _ := userFromContext(r.Context())
	a.audit.logEvent(AuditSettingsUpdated, r, user.ID,
		slog.String("title", settings.Title), slog.Bool("has_logo", settings.Logo != ""))
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}

// Captcha handles GET /auth/captcha.
func (a *API) Captcha(w http.ResponseWriter, r *http.Request) {
	question, answer, err := challenge.NewArithmetic()
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	id, err := a.challenges.Create(answer)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CaptchaResponse{CaptchaID: id, Question: question})
}

// Register handles POST /auth/register. The captcha is consumed before the
// account is created, so a failed registration needs a new captcha.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Nickname) == "" || req.Password == "" || req.CaptchaID == "" || req.CaptchaAnswer == "" {
		writeError(w, http.StatusBadRequest, codeMissingFields)
		return
	}
	if !a.challenges.Consume(req.CaptchaID, req.CaptchaAnswer) {
		a.audit.logFailure(AuditCaptchaInvalid, r, "captcha mismatch")
		writeError(w, http.StatusBadRequest, codeCaptchaInvalid)
		return
	}

	user, err := a.forum.Register(forum.RegisterInput{
		Nickname: req.Nickname,
		Password: req.Password,
		Email:    strings.TrimSpace(req.Email),
		IP:       a.clientKey(r),
	})
	if err != nil {
		a.audit.logFailure(AuditRegisterFailure, r, err.Error())
		a.mapError(w, r, err)
		return
	}
	token, err := a.forum.IssueToken(user)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.setSessionCookie(w, r, token)
	a.audit.logEvent(AuditRegister, r, user.ID, slog.String("nickname", user.Nickname))
	writeJSON(w, http.StatusCreated, UserResponse{User: newUserView(user)})
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Nickname == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeMissingFields)
		return
	}
	user, token, err := a.forum.Authenticate(req.Nickname, req.Password)
	if err != nil {
		if errors.Is(err, forum.ErrInvalidCredentials) {
			a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
				slog.String("nickname", req.Nickname))
		}
		a.mapError(w, r, err)
		return
	}
	a.setSessionCookie(w, r, token)
	a.audit.logEvent(AuditLoginSuccess, r, user.ID)
	writeJSON(w, http.StatusOK, UserResponse{User: newUserView(user)})
}

// Logout handles POST /auth/logout. Tokens are stateless, so this only
// clears the cookie.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w, r)
	a.audit.log(AuditLogout, r)
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// Me handles GET /auth/me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, UserResponse{User: newUserView(user)})
}

// ListSections handles GET /sections.
func (a *API) ListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := a.forum.Sections()
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SectionsResponse{Sections: sections})
}

// CreateSection handles POST /sections.
func (a *API) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req CreateSectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	section, err := a.forum.AddSection(req.Title, req.Description)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	user, _ := userFromContext(r.Context())
	a.audit.logEvent(AuditSectionCreated, r, user.ID, slog.String("section_id", section.ID))
	writeJSON(w, http.StatusCreated, SectionResponse{Section: section})
}

// UpdateSection handles PUT /sections/{sectionID}.
func (a *API) UpdateSection(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionID")
	var req UpdateSectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	section, err := a.forum.UpdateSection(sectionID, forum.SectionUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	user, _ := userFromContext(r.Context())
	a.audit.logEvent(AuditSectionUpdated, r, user.ID, slog.String("section_id", section.ID))
	writeJSON(w, http.StatusOK, SectionResponse{Section: section})
}
