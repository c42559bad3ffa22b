package models

import "strings"

// User is the account snapshot served by /api/me. It is always replaced
// wholesale, never patched.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Patronymic     string `json:"patronymic,omitempty"`
	BirthDate      string `json:"birth_date,omitempty"`
	BalanceCents   int64  `json:"balance_cents"`
	BalanceDisplay string `json:"balance_display,omitempty"`
}

func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{u.LastName, u.FirstName, u.Patronymic} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Registration struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Patronymic      string `json:"patronymic,omitempty"`
	BirthDate       string `json:"birth_date,omitempty"`
}

type ProfileUpdate struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Patronymic string `json:"patronymic"`
	BirthDate  string `json:"birth_date"`
}

type PasswordChange struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}
