package http

import "github.com/vibast-solutions/ms-go-menu-auth/app/dto"

type RegisterResponse struct {
	Account *dto.AccountView `json:"account"`
	Message string           `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type AccountResponse struct {
	Account *dto.AccountView `json:"account"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
