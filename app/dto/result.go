package dto

import "github.com/vibast-solutions/ms-go-menu-auth/app/entity"

// AccountView is the public projection of an account. It never carries the
// password hash or any pending token.
type AccountView struct {
	ID         uint64             `json:"id"`
	Kind       entity.AccountKind `json:"kind"`
	Username   string             `json:"username"`
	Email      string             `json:"email"`
	Role       string             `json:"role"`
	IsVerified bool               `json:"is_verified"`
}

func NewAccountView(account *entity.Account) *AccountView {
	return &AccountView{
		ID:         account.ID,
		Kind:       account.Kind,
		Username:   account.Username,
		Email:      account.Email,
		Role:       account.Role,
		IsVerified: account.IsVerified,
	}
}

type AuthResult struct {
	Account     *AccountView `json:"account"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
}
