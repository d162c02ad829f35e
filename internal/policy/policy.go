// Package policy decides whether a user may perform an action on a task.
//
// The rules are data: for each action a table maps the task's current status
// to the audience each role grants. Status changes are keyed by the
// (from, to) edge instead of the current status alone. Evaluate has no side
// effects and never touches storage.
package policy

import (
	"github.com/gosuda/tasktrack/internal/domain"
)

type Action string

const (
	ActionCreate       Action = "CREATE"
	ActionView         Action = "VIEW"
	ActionUpdateFields Action = "UPDATE_FIELDS"
	ActionAssign       Action = "ASSIGN"
	ActionChangeStatus Action = "CHANGE_STATUS"
	ActionDelete       Action = "DELETE"
	ActionViewHistory  Action = "VIEW_HISTORY"
)

// Reason is a stable code explaining a denial.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonActorBlocked   Reason = "actor_blocked"
	ReasonUnknownRole    Reason = "unknown_role"
	ReasonUnknownAction  Reason = "unknown_action"
	ReasonTaskRequired   Reason = "task_required"
	ReasonNotParticipant Reason = "not_participant"
	ReasonNotCreator     Reason = "creator_only"
	ReasonManagerOnly    Reason = "manager_only"
	ReasonStatusLocked   Reason = "status_locked"
)

// audience is the set of users a role grant covers for a given task.
type audience uint8

const (
	nobody      audience = iota
	anyone               // every user holding the role
	creator              // the task's creator
	participant          // the task's creator or current assignee
)

type grant map[domain.Role]audience

// rule maps a task's current status to the grant in force. A status missing
// from the rule denies everyone.
type rule map[domain.TaskStatus]grant

type edge struct {
	from, to domain.TaskStatus
}

var (
	managers               = grant{domain.RoleManager: anyone}
	participantsOrManagers = grant{domain.RoleUser: participant, domain.RoleManager: anyone}
	creatorOrManagers      = grant{domain.RoleUser: creator, domain.RoleManager: anyone}
	everyone               = grant{domain.RoleUser: anyone, domain.RoleManager: anyone}
	openStatuses           = []domain.TaskStatus{domain.TaskStatusNew, domain.TaskStatusInProgress}
	statusChangeDefault    = participantsOrManagers
)

var actionTable = map[Action]rule{
	ActionView:         everyStatus(participantsOrManagers),
	ActionViewHistory:  everyStatus(participantsOrManagers),
	ActionUpdateFields: onlyIn(creatorOrManagers, openStatuses...),
	ActionAssign:       onlyIn(managers, openStatuses...),
	ActionDelete: {
		domain.TaskStatusNew:        creatorOrManagers,
		domain.TaskStatusInProgress: managers,
		domain.TaskStatusDone:       managers,
		domain.TaskStatusCanceled:   managers,
	},
}

// deletedTable overrides actionTable for soft-deleted tasks.
var deletedTable = map[Action]grant{
	ActionView:        managers,
	ActionViewHistory: creatorOrManagers,
}

// edgeTable holds the grant for each legal status edge. Pairs that are not
// edges fall back to statusChangeDefault so that the state machine, not the
// policy, rejects them.
var edgeTable = map[edge]grant{
	{domain.TaskStatusNew, domain.TaskStatusInProgress}:      participantsOrManagers,
	{domain.TaskStatusInProgress, domain.TaskStatusDone}:     participantsOrManagers,
	{domain.TaskStatusNew, domain.TaskStatusCanceled}:        managers,
	{domain.TaskStatusInProgress, domain.TaskStatusCanceled}: managers,
	{domain.TaskStatusDone, domain.TaskStatusInProgress}:     managers,
	{domain.TaskStatusCanceled, domain.TaskStatusInProgress}: managers,
}

func everyStatus(g grant) rule {
	return onlyIn(g, domain.TaskStatuses...)
}

func onlyIn(g grant, statuses ...domain.TaskStatus) rule {
	r := make(rule, len(statuses))
	for _, s := range statuses {
		r[s] = g
	}
	return r
}

// Request describes one permission question. Target is only consulted for
// ActionChangeStatus; when empty the generic right to change status is
// evaluated.
type Request struct {
	Actor  domain.User
	Action Action
	Task   *domain.Task
	Target domain.TaskStatus
}

// Decision is the outcome of Evaluate. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err converts a denial into a *domain.PermissionError, or nil if allowed.
func (d Decision) Err(action Action) error {
	if d.Allowed {
		return nil
	}
	return &domain.PermissionError{Action: string(action), Reason: string(d.Reason)}
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Admit checks the preconditions every action shares: a known role and an
// active account.
func Admit(actor domain.User) Decision {
	if !actor.Role.Valid() {
		return deny(ReasonUnknownRole)
	}
	if !actor.IsActive() {
		return deny(ReasonActorBlocked)
	}
	return allow()
}

// Evaluate answers req.
func Evaluate(req Request) Decision {
	actor := req.Actor
	if d := Admit(actor); !d.Allowed {
		return d
	}

	if req.Action == ActionCreate {
		return check(everyone, actor, nil)
	}

	g, known := grantFor(req)
	if !known {
		return deny(ReasonUnknownAction)
	}
	if req.Task == nil {
		return deny(ReasonTaskRequired)
	}
	if g == nil {
		return deny(ReasonStatusLocked)
	}

	return check(g, actor, req.Task)
}

// CanPerform reports whether actor may perform action on task.
func CanPerform(actor domain.User, action Action, task *domain.Task) bool {
	return Evaluate(Request{Actor: actor, Action: action, Task: task}).Allowed
}

// grantFor selects the grant in force for req. known is false for
// unrecognized actions. A nil grant with known=true means the task's status
// denies the action to everyone.
func grantFor(req Request) (g grant, known bool) {
	if req.Action == ActionChangeStatus {
		if req.Task != nil && req.Target != "" {
			if g, ok := edgeTable[edge{req.Task.Status, req.Target}]; ok {
				return g, true
			}
		}
		return statusChangeDefault, true
	}

	r, ok := actionTable[req.Action]
	if !ok {
		return nil, false
	}
	if req.Task == nil {
		return nil, true
	}
	if req.Task.Deleted {
		if g, ok := deletedTable[req.Action]; ok {
			return g, true
		}
	}
	return r[req.Task.Status], true
}

func check(g grant, actor domain.User, task *domain.Task) Decision {
	switch g[actor.Role] {
	case anyone:
		return allow()
	case creator:
		if task.IsCreator(actor.ID) {
			return allow()
		}
		return deny(ReasonNotCreator)
	case participant:
		if task.IsCreator(actor.ID) || task.IsAssignee(actor.ID) {
			return allow()
		}
		return deny(ReasonNotParticipant)
	default:
		if actor.Role != domain.RoleManager && g[domain.RoleManager] != nobody {
			return deny(ReasonManagerOnly)
		}
		return deny(ReasonStatusLocked)
	}
}
