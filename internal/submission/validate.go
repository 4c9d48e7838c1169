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

package submission

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError is a client-caused rejection with a stable wire code.
// The code is the exact string the frontend switches on — do not rename.
type ValidationError struct {
	Code  string
	Field string
}

func (e *ValidationError) Error() string {
	return "invalid submission field " + e.Field + " (" + e.Code + ")"
}

// Stable validation error codes, part of the public API contract.
var (
	ErrInvalidBody     = &ValidationError{Code: "INVALID_REQUEST_BODY", Field: "body"}
	ErrInvalidEmail    = &ValidationError{Code: "INVALID_EMAIL", Field: "email"}
	ErrInvalidIndustry = &ValidationError{Code: "INVALID_INDUSTRY", Field: "industry"}
	ErrInvalidRisk     = &ValidationError{Code: "INVALID_RISK_LEVEL", Field: "risk"}
	ErrInvalidTitle    = &ValidationError{Code: "INVALID_TITLE", Field: "title"}
	ErrInvalidMessage  = &ValidationError{Code: "INVALID_MESSAGE", Field: "message"}
)

// emailPattern is the address-shape check: non-empty local part, one @,
// non-empty domain containing a dot, no whitespace anywhere.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks a decoded submission against every field rule and
// returns the first failure. Rules are checked in a fixed order
// (email, industry, risk, title, message); there is no error
// accumulation — the frontend only ever displays one code.
func (s *Submission) Validate() error {
	if s.Email == "" || !ValidEmail(s.Email) {
		return ErrInvalidEmail
	}
	if !validIndustries[s.Industry] {
		return ErrInvalidIndustry
	}
	if !validRisks[s.Risk] {
		return ErrInvalidRisk
	}
	// Length caps count characters, not bytes — an accented title must
	// not burn through its budget twice as fast.
	if s.Title == "" || utf8.RuneCountInString(s.Title) > MaxTitleLen {
		return ErrInvalidTitle
	}
	if s.Message == "" || utf8.RuneCountInString(s.Message) > MaxMessageLen {
		return ErrInvalidMessage
	}
	return nil
}

// ValidEmail reports whether the address has a plausible shape and does
// not belong to a blocked personal-mail domain. The domain comparison is
// case-insensitive; the local part is left as-is.
func ValidEmail(email string) bool {
	if !emailPattern.MatchString(email) {
		return false
	}

	at := strings.LastIndex(email, "@")
	domain := strings.ToLower(email[at+1:])
	return !personalDomains[domain]
}
