package authz

import (
	"context"
	"errors"
)

// Objects are the management-surface resources policies speak about. The
// proxy data plane never consults the enforcer; session tokens and
// vouchers are bearer credentials.
const (
	ObjectGateway    = "gateway"
	ObjectEarner     = "earner"
	ObjectAPIKey     = "api_key"
	ObjectPayout     = "payout"
	ObjectRequestLog = "request_log"
	ObjectStatement  = "statement"
	ObjectSweep      = "sweep"
)

const (
	ActionGatewayView       = "gateway.view"
	ActionGatewayCreate     = "gateway.create"
	ActionGatewayUpdate     = "gateway.update"
	ActionGatewayActivate   = "gateway.activate"
	ActionGatewayDeactivate = "gateway.deactivate"

	ActionEarnerView   = "earner.view"
	ActionEarnerUpdate = "earner.update"
	ActionEarnerList   = "earner.list"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionPayoutRequest = "payout.request"
	ActionPayoutView    = "payout.view"

	ActionRequestLogView = "request_log.view"
	ActionStatementView  = "statement.view"

	ActionSweepRun = "sweep.run"
)

type Service interface {
	// Authorize checks that the actor may perform action on object.
	// Actors are "earner:<id>" or "system"; ownership of individual rows
	// stays with the domain services.
	Authorize(ctx context.Context, actor, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
