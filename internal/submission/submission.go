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

// Package submission defines the inbound lead-capture payload and its
// validation rules. Validation is pure — no network access, no clock,
// no shared state — so the pipeline can reject bad input before any
// upstream call is made.
package submission

// Submission is a single lead-capture form payload as received from the
// scorecard frontend. It is immutable once decoded; the pipeline never
// writes back into it.
type Submission struct {
	Email     string `json:"email"`
	Industry  string `json:"industry"`
	Title     string `json:"title"`
	Risk      string `json:"risk"`
	AssetName string `json:"assetName,omitempty"`
	Message   string `json:"message"`
}

// Risk tiers. The scorecard frontend computes these from quiz answers;
// they feed the CRM lifecycle-stage mapping downstream.
const (
	RiskLow        = "LOW"
	RiskCompletion = "COMPLETION"
	RiskHigh       = "HIGH"
)

// validIndustries is the closed set accepted by the form's industry picker.
var validIndustries = map[string]bool{
	"BANKING":    true,
	"INSURANCE":  true,
	"TELCO":      true,
	"UTILITIES":  true,
	"HEALTHCARE": true,
	"MORTGAGE":   true,
	"TRAVEL":     true,
	"OTHER":      true,
}

// validRisks is the closed set of risk tiers.
var validRisks = map[string]bool{
	RiskLow:        true,
	RiskCompletion: true,
	RiskHigh:       true,
}

// personalDomains is the block-list of consumer mail providers. Leads are
// B2B; a personal address is rejected the same as a malformed one.
// Comparison is case-insensitive on the domain part.
var personalDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"icloud.com":  true,
	"me.com":      true,
	"aol.com":     true,
	"msn.com":     true,
	"live.com":    true,
}

// Field length caps enforced by Validate.
const (
	MaxTitleLen   = 100
	MaxMessageLen = 2000
)
