package registration

import "eduvision/registry/internal/model"

type StateKind string

const (
	StateUnregistered StateKind = "unregistered"
	StatePending      StateKind = "pending"
	StateActive       StateKind = "active"
)

// State is the resolved lifecycle position of an email address.
// SubStatus is set for pending states, Role for active ones.
type State struct {
	Kind            StateKind
	SubStatus       model.RegistrationStatus
	Role            model.Role
	RejectionReason *string
}

// Settled reports whether the state can still change without the user
// acting again. Active and rejected are terminal for a watcher; a
// pending submission is not.
func (s State) Settled() bool {
	if s.Kind == StateActive {
		return true
	}
	return s.Kind == StatePending && s.SubStatus == model.StatusRejected
}

const (
	PathCompleteRegistration = "/auth/complete-registration"
	PathPendingApproval      = "/auth/pending-approval"
	PathRegistrationRejected = "/auth/registration-rejected"
	PathStudentDashboard     = "/dashboard/student"
	PathFacultyDashboard     = "/dashboard/faculty"
)

// RedirectFor maps a state to the page the front-end should land on.
// Total over every reachable state: unknown kinds fall back to the
// registration entry page rather than failing.
func RedirectFor(state State) string {
	switch state.Kind {
	case StateActive:
		if state.Role == model.RoleFaculty {
			return PathFacultyDashboard
		}
		return PathStudentDashboard
	case StatePending:
		if state.SubStatus == model.StatusRejected {
			return PathRegistrationRejected
		}
		return PathPendingApproval
	default:
		return PathCompleteRegistration
	}
}
