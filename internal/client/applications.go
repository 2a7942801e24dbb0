package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// ApplicationCost asks the backend what submitting an application costs.
func (c *Client) ApplicationCost(ctx context.Context) (models.ApplicationCost, error) {
	var cost models.ApplicationCost
	err := c.do(ctx, call{op: "applications.cost", method: http.MethodGet, path: "/applications/cost", auth: true}, &cost)
	return cost, err
}

// CreateApplication submits draft. The backend debits the cost and refuses
// with InsufficientFunds when the balance is too low.
func (c *Client) CreateApplication(ctx context.Context, draft models.ApplicationDraft) (models.Application, error) {
	body, err := jsonBody(draft)
	if err != nil {
		return models.Application{}, err
	}
	var app models.Application
	err = c.do(ctx, call{
		op:          "applications.create",
		method:      http.MethodPost,
		path:        "/applications",
		body:        body,
		contentType: "application/json",
		auth:        true,
		hint:        apierr.KindInsufficientFunds,
	}, &app)
	return app, err
}

func (c *Client) ListMyApplications(ctx context.Context) ([]models.Application, error) {
	return c.listApplications(ctx, "applications.list", "/applications")
}

// ListAllApplications is the admin listing of every user's applications.
func (c *Client) ListAllApplications(ctx context.Context) ([]models.Application, error) {
	return c.listApplications(ctx, "applications.list_all", "/admin/applications")
}

func (c *Client) listApplications(ctx context.Context, op, path string) ([]models.Application, error) {
	var apps []models.Application
	if err := c.do(ctx, call{op: op, method: http.MethodGet, path: path, auth: true}, &apps); err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return apps, nil
}

// SetApplicationStatus is the admin review of application id. Only approved
// and rejected can be set.
func (c *Client) SetApplicationStatus(ctx context.Context, id int64, status models.Status) (models.Application, error) {
	const op = "applications.set_status"
	if !status.Terminal() {
		return models.Application{}, apierr.Validation(op, map[string]string{
			"status": fmt.Sprintf("cannot set status %q", status),
		})
	}
	body, err := jsonBody(models.StatusUpdate{Status: status})
	if err != nil {
		return models.Application{}, err
	}
	var app models.Application
	err = c.do(ctx, call{
		op:          op,
		method:      http.MethodPut,
		path:        fmt.Sprintf("/admin/applications/%d", id),
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &app)
	return app, err
}
