// Package model defines the value types shared by the control plane:
// apps, machines, their configuration, leases and audit events.
package model

import "time"

// AppStatus is the lifecycle status of an App.
type AppStatus string

const (
	AppPending   AppStatus = "pending"
	AppDeployed  AppStatus = "deployed"
	AppSuspended AppStatus = "suspended"
)

// App is a named collection of machines within an organization.
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OrgSlug   string    `json:"org_slug"`
	Status    AppStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
