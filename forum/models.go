package forum

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/opweb/document"
)

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a forum account as stored in the users collection.
type User struct {
	ID           string   `json:"id"`
	Nickname     string   `json:"nickname"`
	PasswordHash string   `json:"passwordHash"`
	Email        string   `json:"email"`
	IP           string   `json:"ip"`
	Role         string   `json:"role"`
	CreatedAt    string   `json:"createdAt"`
	Reputation   int      `json:"reputation"`
	Likes        int      `json:"likes"`
	Thanks       int      `json:"thanks"`
	Favorites    []string `json:"favorites"`
	Answers      int      `json:"answers"`
	Theme        string   `json:"theme"`
	Avatar       string   `json:"avatar"`
	Badges       []string `json:"badges"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Section is a top-level forum section.
type Section struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

func computeBadges(u User) []string {
	badges := []string{}
	if u.Reputation >= 10 {
		badges = append(badges, "Уважение")
	}
	if u.Answers >= 5 {
		badges = append(badges, "Лектор")
	}
	if len(u.Favorites) >= 5 {
		badges = append(badges, "Коллекционер")
	}
	return badges
}

// toRecord and fromRecord move typed values in and out of the opaque
// collection records. Unknown record fields are dropped on decode.
func toRecord(v any) (document.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec document.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func fromRecord[T any](rec document.Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding record %v: %w", rec["id"], err)
	}
	return out, nil
}

func fromRecords[T any](recs []document.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := fromRecord[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
