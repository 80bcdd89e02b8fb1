package workflow

import (
	"fmt"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// TransitionRule maps a status, optionally restricted to one submitter role,
// to the status an approval moves it to.
type TransitionRule struct {
	From Status
	// Role limits the rule to requests submitted with that role. Empty
	// matches any role.
	Role Role
	To   Status
}

// ApprovalTransitions is the approval table. Rules with a role come first
// so they win over the generic rule for the same status.
var ApprovalTransitions = []TransitionRule{
	// District submissions were already vetted by the district.
	{From: StatusInitiated, Role: RoleDistrict, To: StatusMOHVerified},
	{From: StatusInitiated, To: StatusDistrictApproved},
	{From: StatusDistrictApproved, To: StatusMOHVerified},
	{From: StatusMOHVerified, To: StatusPublished},
	// Planning approval is set outside this service; such requests publish
	// on their next approval.
	{From: StatusPlanningApproved, To: StatusPublished},
}

// TransitionError describes a refused transition.
type TransitionError struct {
	From    Status `json:"from"`
	To      Status `json:"to,omitempty"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string { return e.Message }

// NextStatus returns the status an approval moves a request in current,
// submitted with role, to.
func NextStatus(current Status, role Role) (Status, error) {
	for _, rule := range ApprovalTransitions {
		if rule.From != current {
			continue
		}
		if rule.Role != "" && rule.Role != role {
			continue
		}
		return rule.To, nil
	}
	terr := &TransitionError{
		From:    current,
		Message: fmt.Sprintf("a %s request cannot be approved", current),
	}
	return "", apierr.Wrap(apierr.KindConflict, apierr.CodeInvalidTransition, terr, "%s", terr.Message)
}

// CanReject reports whether a request in current may be rejected.
func CanReject(current Status) error {
	if current.Terminal() {
		terr := &TransitionError{
			From:    current,
			To:      StatusRejected,
			Message: fmt.Sprintf("a %s request cannot be rejected", current),
		}
		return apierr.Wrap(apierr.KindConflict, apierr.CodeInvalidTransition, terr, "%s", terr.Message)
	}
	return nil
}
