package engine

import (
	"strings"

	"github.com/badoux/checkmail"

	"leadpilot/models"
	"leadpilot/utils"
)

// Qualification outcomes.
const (
	QualificationPassed   = "PASSED"
	QualificationRejected = "REJECTED"
)

// QualificationResult reports why a lead did or did not enter routing.
type QualificationResult struct {
	Status  string
	Reasons []string
}

func (r QualificationResult) Passed() bool {
	return r.Status == QualificationPassed
}

// QualificationFilter rejects leads missing mandatory fields or failing
// basic contactability checks before they reach the router. With
// DeepVerify enabled, emails additionally go through MX and disposable
// domain checks (network lookups; keep it off in tests).
type QualificationFilter struct {
	DeepVerify bool
}

func NewQualificationFilter(deepVerify bool) *QualificationFilter {
	return &QualificationFilter{DeepVerify: deepVerify}
}

// Qualify runs the checks. It never errors; all failures are reasons.
func (f *QualificationFilter) Qualify(lead *models.Lead) QualificationResult {
	var reasons []string

	if strings.TrimSpace(lead.Company) == "" && strings.TrimSpace(lead.FirstName) == "" {
		reasons = append(reasons, "missing identity: need at least a name or a company")
	}

	email := strings.TrimSpace(lead.Email)
	hasContact := email != "" || strings.TrimSpace(lead.SocialHandle) != "" || strings.TrimSpace(lead.FormURL) != ""
	if !hasContact {
		reasons = append(reasons, "no contact field: email, social handle, or form URL required")
	}

	if email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			reasons = append(reasons, "invalid email format: "+err.Error())
		} else if f.DeepVerify {
			verdict := utils.VerifyContactability(email)
			if !verdict.Contactable {
				reasons = append(reasons, "email not contactable: "+verdict.Detail)
			}
		}
	}

	if len(reasons) > 0 {
		return QualificationResult{Status: QualificationRejected, Reasons: reasons}
	}
	return QualificationResult{Status: QualificationPassed}
}
