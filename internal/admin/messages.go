package admin

import (
	"time"

	"github.com/kazz187/taskmirror/internal/reconcile"
	"github.com/kazz187/taskmirror/internal/status"
)

const ServiceName = "taskmirror.v1.AdminService"

const (
	TriggerProcedure          = "/" + ServiceName + "/Trigger"
	ResetProcedure            = "/" + ServiceName + "/Reset"
	StatusProcedure           = "/" + ServiceName + "/Status"
	ExportStateProcedure      = "/" + ServiceName + "/ExportState"
	InvalidateRosterProcedure = "/" + ServiceName + "/InvalidateRoster"
)

type TriggerRequest struct{}

type TriggerResponse struct {
	Report *reconcile.Report `json:"report"`
}

type ResetRequest struct{}

type ResetResponse struct {
	ResetAt time.Time `json:"reset_at"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Status *status.Status `json:"status"`
}

type ExportStateRequest struct{}

type ExportStateResponse struct {
	State *ExportedState `json:"state"`
}

type InvalidateRosterRequest struct{}

type InvalidateRosterResponse struct{}
