// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reconcile turns a validated submission into exactly one remote
// contact operation: create when no contact matches the email, update
// otherwise. Two strategies are supported:
//
//   - StrategySearch: search by email, then PATCH the first match or
//     POST a new contact. Two concurrent submissions for the same unseen
//     email can both observe "no match" and both create — a known
//     duplicate-contact race.
//   - StrategyUpsert (default): a single upsert-by-email call. Race-free,
//     but relies on HubSpot's batch upsert reporting which branch it took.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/callvu/leadbridge/internal/hubspot"
	"github.com/callvu/leadbridge/internal/submission"
)

// Strategy selects how create-vs-update is decided.
type Strategy string

const (
	StrategySearch Strategy = "search"
	StrategyUpsert Strategy = "upsert"
)

// Action is the branch the remote store took.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Stage identifies which remote call failed.
type Stage string

const (
	StageSearch Stage = "search"
	StageCreate Stage = "create"
	StageUpdate Stage = "update"
	StageUpsert Stage = "upsert"
)

// Lifecycle-stage mapping, version 1. The property name and label
// vocabulary are a remote-store contract shared with the HubSpot portal
// configuration; change them only together with the portal.
const (
	LifecycleProperty           = "lifecycle_stage__new_"
	LifecycleSalesQualified     = "Sales Qualified Lead"
	LifecycleMarketingQualified = "Marketing Qualified Lead"
)

// LifecycleStage maps a risk tier to the CRM lifecycle label. HIGH and
// COMPLETION leads are sales-qualified; everything else defaults to the
// marketing tier.
func LifecycleStage(risk string) string {
	if risk == submission.RiskHigh || risk == submission.RiskCompletion {
		return LifecycleSalesQualified
	}
	return LifecycleMarketingQualified
}

// Outcome is the normalized result of one reconciliation. Properties is
// the exact map that went over the wire, kept for diagnostics.
type Outcome struct {
	Action     Action
	ContactID  string
	Properties hubspot.Properties
}

// StageError reports which remote step failed. Err is usually a
// *hubspot.APIError carrying the remote status and raw payload.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("contact %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// BuildProperties derives the contact property map from a valid
// submission: the six business fields plus the lifecycle stage, nothing
// else. scorecard_asset is always present, empty when the form omitted
// the asset name.
func BuildProperties(sub submission.Submission) hubspot.Properties {
	return hubspot.Properties{
		"email":                sub.Email,
		"industry":             sub.Industry,
		"jobtitle":             sub.Title,
		"scorecard_risk_level": sub.Risk,
		"scorecard_asset":      sub.AssetName,
		"scorecard_message":    sub.Message,
		LifecycleProperty:      LifecycleStage(sub.Risk),
	}
}

// Reconciler issues the correct create/update/upsert operation for a
// validated submission.
type Reconciler struct {
	client   *hubspot.Client
	strategy Strategy
}

// New creates a reconciler. An empty strategy defaults to upsert.
func New(client *hubspot.Client, strategy Strategy) *Reconciler {
	if strategy == "" {
		strategy = StrategyUpsert
	}
	return &Reconciler{client: client, strategy: strategy}
}

// Reconcile synchronizes one submission into the contact store. On
// failure it returns a *StageError; the outcome is only meaningful when
// the error is nil.
func (r *Reconciler) Reconcile(ctx context.Context, sub submission.Submission) (*Outcome, error) {
	props := BuildProperties(sub)

	switch r.strategy {
	case StrategySearch:
		return r.searchThenBranch(ctx, sub.Email, props)
	default:
		return r.upsert(ctx, sub.Email, props)
	}
}

func (r *Reconciler) searchThenBranch(ctx context.Context, email string, props hubspot.Properties) (*Outcome, error) {
	contact, err := r.client.SearchContactByEmail(ctx, email)
	if err != nil {
		return nil, &StageError{Stage: StageSearch, Err: err}
	}

	if contact != nil {
		slog.Info("updating existing contact", "contact_id", contact.ID)
		if err := r.client.UpdateContact(ctx, contact.ID, props); err != nil {
			return nil, &StageError{Stage: StageUpdate, Err: err}
		}
		return &Outcome{Action: ActionUpdated, ContactID: contact.ID, Properties: props}, nil
	}

	slog.Info("creating new contact", "email", email)
	id, err := r.client.CreateContact(ctx, props)
	if err != nil {
		return nil, &StageError{Stage: StageCreate, Err: err}
	}
	return &Outcome{Action: ActionCreated, ContactID: id, Properties: props}, nil
}

func (r *Reconciler) upsert(ctx context.Context, email string, props hubspot.Properties) (*Outcome, error) {
	id, created, err := r.client.UpsertContactByEmail(ctx, email, props)
	if err != nil {
		return nil, &StageError{Stage: StageUpsert, Err: err}
	}

	action := ActionUpdated
	if created {
		action = ActionCreated
	}
	slog.Info("upserted contact", "contact_id", id, "action", action)
	return &Outcome{Action: action, ContactID: id, Properties: props}, nil
}
