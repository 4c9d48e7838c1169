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

// Package pipeline composes validation, rate limiting, and contact
// reconciliation into one request flow and maps every failure mode to a
// stable machine-readable response. Transitions are one-way; there is
// no retry loop — retries, if any, are the caller's business.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/callvu/leadbridge/internal/hubspot"
	"github.com/callvu/leadbridge/internal/ratelimit"
	"github.com/callvu/leadbridge/internal/reconcile"
	"github.com/callvu/leadbridge/internal/submission"
)

// Stable wire codes. TOKEN_MISSING_IN_VERCEL predates this service's
// move off Vercel; the frontend still switches on it, so it stays.
const (
	CodeRateLimited   = "RATE_LIMIT_EXCEEDED"
	CodeTokenMissing  = "TOKEN_MISSING_IN_VERCEL"
	CodeSearchFailed  = "HUBSPOT_SEARCH_FAILED"
	CodeCreateFailed  = "HUBSPOT_CREATE_FAILED"
	CodeUpdateFailed  = "HUBSPOT_UPDATE_FAILED"
	CodeUpsertFailed  = "HUBSPOT_UPSERT_FAILED"
	CodeBridgeCrashed = "BRIDGE_CRASHED"
)

// Response is the terminal state of one pipeline run, ready to be
// serialised by the HTTP layer.
type Response struct {
	Status int
	Body   any
}

// SuccessBody is the 200 envelope.
type SuccessBody struct {
	Success   bool   `json:"success"`
	Action    string `json:"action"`
	ContactID string `json:"contactId"`
}

// ErrorBody is the envelope for every rejection.
type ErrorBody struct {
	Error   string          `json:"error"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Recorder receives the outcome of each completed pipeline run for
// diagnostics. Implementations must be best-effort; a Record error
// never changes the response.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Entry is one journal row.
type Entry struct {
	SubmissionID string
	Email        string
	Risk         string
	Status       int
	ErrorCode    string // empty on success
	Action       string // created/updated on success
	ContactID    string
}

// Orchestrator runs the submission pipeline. TokenPresent gates the
// whole flow: without CRM credentials the service is misconfigured and
// every request fails before any remote call.
type Orchestrator struct {
	TokenPresent bool
	Limiter      *ratelimit.Limiter
	Reconciler   *reconcile.Reconciler

	// RemoteTimeout bounds the whole reconcile exchange. Zero disables
	// the bound (tests).
	RemoteTimeout time.Duration

	// Recorder is optional.
	Recorder Recorder

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Process runs one raw request body through the pipeline:
// decode → validate → rate limit → reconcile.
func (o *Orchestrator) Process(ctx context.Context, raw []byte) Response {
	now := time.Now()
	if o.Now != nil {
		now = o.Now()
	}
	submissionID := uuid.New().String()

	var sub submission.Submission
	resp := o.run(ctx, raw, now, &sub)

	o.record(ctx, submissionID, sub, resp)
	return resp
}

func (o *Orchestrator) run(ctx context.Context, raw []byte, now time.Time, sub *submission.Submission) Response {
	// Configuration gate first: a missing token is an operator problem,
	// reported regardless of payload validity.
	if !o.TokenPresent {
		slog.Error("hubspot token missing from environment")
		return Response{
			Status: http.StatusInternalServerError,
			Body:   ErrorBody{Error: CodeTokenMissing},
		}
	}

	if err := decodeSubmission(raw, sub); err != nil {
		return rejectValidation(err)
	}
	if err := sub.Validate(); err != nil {
		slog.Info("submission rejected", "email", sub.Email, "error", err)
		return rejectValidation(err)
	}

	allowed, err := o.Limiter.Allow(ctx, sub.Email, now)
	if err != nil {
		// A broken limiter backend must not take the funnel down.
		slog.Warn("rate limit check failed, admitting", "error", err)
	} else if !allowed {
		slog.Warn("rate limit exceeded", "email", sub.Email)
		return Response{
			Status: http.StatusTooManyRequests,
			Body: ErrorBody{
				Error:   CodeRateLimited,
				Message: "Too many submissions. Please try again in an hour.",
			},
		}
	}

	slog.Info("processing submission", "email", sub.Email, "risk", sub.Risk)

	rctx := ctx
	if o.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, o.RemoteTimeout)
		defer cancel()
	}

	outcome, err := o.Reconciler.Reconcile(rctx, *sub)
	if err != nil {
		return rejectUpstream(err)
	}

	return Response{
		Status: http.StatusOK,
		Body: SuccessBody{
			Success:   true,
			Action:    string(outcome.Action),
			ContactID: outcome.ContactID,
		},
	}
}

// decodeSubmission parses the raw body strictly enough to catch
// non-object payloads without rejecting unknown fields (the frontend
// adds analytics fields we ignore).
func decodeSubmission(raw []byte, sub *submission.Submission) error {
	trimmed := bytes.TrimSpace(raw)
	// json.Unmarshal accepts "null" into a struct; the contract wants
	// anything that is not an object rejected.
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return submission.ErrInvalidBody
	}
	if err := json.Unmarshal(trimmed, sub); err != nil {
		return submission.ErrInvalidBody
	}
	return nil
}

func rejectValidation(err error) Response {
	var verr *submission.ValidationError
	if !errors.As(err, &verr) {
		verr = submission.ErrInvalidBody
	}
	return Response{
		Status: http.StatusBadRequest,
		Body:   ErrorBody{Error: verr.Code},
	}
}

// stageCodes maps a failed reconcile stage to its wire code.
var stageCodes = map[reconcile.Stage]string{
	reconcile.StageSearch: CodeSearchFailed,
	reconcile.StageCreate: CodeCreateFailed,
	reconcile.StageUpdate: CodeUpdateFailed,
	reconcile.StageUpsert: CodeUpsertFailed,
}

func rejectUpstream(err error) Response {
	var stageErr *reconcile.StageError
	code := CodeBridgeCrashed
	if errors.As(err, &stageErr) {
		code = stageCodes[stageErr.Stage]
	}

	// Mirror the remote status and raw payload when HubSpot answered.
	// Transport-level failures (timeout, refused connection) have no
	// remote status to mirror; they surface as a gateway error.
	var apiErr *hubspot.APIError
	if errors.As(err, &apiErr) {
		slog.Error("hubspot call failed",
			"code", code,
			"status", apiErr.StatusCode,
		)
		return Response{
			Status: apiErr.StatusCode,
			Body:   ErrorBody{Error: code, Details: apiErr.Body},
		}
	}

	slog.Error("hubspot unreachable", "code", code, "error", err)
	return Response{
		Status: http.StatusBadGateway,
		Body:   ErrorBody{Error: code, Message: err.Error()},
	}
}

func (o *Orchestrator) record(ctx context.Context, submissionID string, sub submission.Submission, resp Response) {
	if o.Recorder == nil {
		return
	}

	e := Entry{
		SubmissionID: submissionID,
		Email:        sub.Email,
		Risk:         sub.Risk,
		Status:       resp.Status,
	}
	switch body := resp.Body.(type) {
	case SuccessBody:
		e.Action = body.Action
		e.ContactID = body.ContactID
	case ErrorBody:
		e.ErrorCode = body.Error
	}

	if err := o.Recorder.Record(ctx, e); err != nil {
		slog.Warn("journal write failed", "submission_id", submissionID, "error", err)
	}
}
