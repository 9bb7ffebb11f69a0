package api

import (
	"github.com/jmcleod/opweb/document"
	"github.com/jmcleod/opweb/forum"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is returned by endpoints with nothing else to report.
type StatusResponse struct {
	Status string `json:"status"`
}

// CaptchaResponse carries a new registration challenge.
type CaptchaResponse struct {
	CaptchaID string `json:"captchaId"`
	Question  string `json:"question"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Nickname      string `json:"nickname"`
	Password      string `json:"password"`
	Email         string `json:"email"`
	CaptchaID     string `json:"captchaId"`
	CaptchaAnswer string `json:"captchaAnswer"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// UserView is a user without credentials or the registration address.
type UserView struct {
	ID         string   `json:"id"`
	Nickname   string   `json:"nickname"`
	Role       string   `json:"role"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	Reputation int      `json:"reputation"`
	Likes      int      `json:"likes"`
	Thanks     int      `json:"thanks"`
	Answers    int      `json:"answers"`
	Favorites  []string `json:"favorites"`
	Theme      string   `json:"theme,omitempty"`
	Avatar     string   `json:"avatar,omitempty"`
	Badges     []string `json:"badges"`
}

func newUserView(u forum.User) UserView {
	return UserView{
		ID:         u.ID,
		Nickname:   u.Nickname,
		Role:       u.Role,
		CreatedAt:  u.CreatedAt,
		Reputation: u.Reputation,
		Likes:      u.Likes,
		Thanks:     u.Thanks,
		Answers:    u.Answers,
		Favorites:  nonNil(u.Favorites),
		Theme:      u.Theme,
		Avatar:     u.Avatar,
		Badges:     nonNil(u.Badges),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// UserResponse wraps a single user.
type UserResponse struct {
	User UserView `json:"user"`
}

// SettingsResponse wraps the forum settings.
type SettingsResponse struct {
	Settings document.Settings `json:"settings"`
}

// UpdateSettingsRequest is the body of PUT /settings.
type UpdateSettingsRequest struct {
	Title string `json:"title"`
	Logo  string `json:"logo"`
}

// SectionsResponse lists sections.
type SectionsResponse struct {
	Sections []forum.Section `json:"sections"`
}

// SectionResponse wraps a single section.
type SectionResponse struct {
	Section forum.Section `json:"section"`
}

// CreateSectionRequest is the body of POST /sections.
type CreateSectionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateSectionRequest is the body of PUT /sections/{sectionID}. Absent
// fields are left unchanged.
type UpdateSectionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}
