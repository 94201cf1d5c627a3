package domain

import (
	"context"
	"errors"

	"github.com/satgate/satgate/internal/pricer"
	"github.com/satgate/satgate/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Gateway, error)
	Get(ctx context.Context, id string) (*Gateway, error)
	List(ctx context.Context, page pagination.Pagination) (*ListResponse, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Gateway, error)
	Activate(ctx context.Context, id string) (*Gateway, error)
	Deactivate(ctx context.Context, id string) (*Gateway, error)

	// Resolve fetches a gateway for proxying, rejecting unknown and
	// deactivated ids.
	Resolve(ctx context.Context, id string) (*Gateway, error)
}

type CreateRequest struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	TargetURL    string        `json:"target_url"`
	DefaultPrice int64         `json:"default_price"`
	Rules        []pricer.Rule `json:"rules,omitempty"`
}

type UpdateRequest struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	TargetURL    *string        `json:"target_url,omitempty"`
	DefaultPrice *int64         `json:"default_price,omitempty"`
	Rules        *[]pricer.Rule `json:"rules,omitempty"`
}

type ListResponse struct {
	Gateways []*Gateway          `json:"gateways"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrNotFound      = errors.New("gateway_not_found")
	ErrInactive      = errors.New("gateway_inactive")
	ErrAlreadyExists = errors.New("gateway_already_exists")
	ErrInvalidEarner = errors.New("invalid_earner")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidTarget = errors.New("invalid_target_url")
	ErrInvalidPrice  = errors.New("invalid_default_price")
	ErrInvalidRules  = errors.New("invalid_rules")
	ErrNotOwner      = errors.New("not_gateway_owner")
)
