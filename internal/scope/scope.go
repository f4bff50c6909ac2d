// Package scope builds the authorization predicate that narrows a resource
// query to the rows a principal may see. Handlers never assemble role
// conditions themselves; they ask this package and splice the rendered
// clause into the base query. Caller-supplied filters are always ANDed onto
// the role predicate, so no filter can widen access.
package scope

import (
	"strconv"
	"strings"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
)

type Resource string

const (
	ScheduleEvents Resource = "schedule_events"
	ClassSections  Resource = "class_sections"
	Notifications  Resource = "notifications"
)

// Filter is an extra condition ANDed onto the role predicate. Expr uses '?'
// placeholders, one per argument, e.g. "se.start_datetime >= ?".
type Filter struct {
	Expr string
	Args []any
}

// Predicate is a rendered WHERE clause body with postgres-numbered
// placeholders starting at $1.
type Predicate struct {
	Where   string
	Args    []any
	OrderBy string
}

// For returns the predicate for one principal and resource kind. An
// unrecognized resource kind is an error, never an unscoped result set.
//
// Table aliases are part of the contract with the store layer: schedule
// events are "se", class sections "c", notifications "n".
func For(p model.Principal, resource Resource, filters ...Filter) (Predicate, error) {
	if !model.ValidRole(p.Role) || p.UserID == "" {
		return Predicate{}, apperr.New(apperr.KindUnauthorized, "unscoped_principal")
	}

	var clauses []string
	var args []any
	orderBy := ""

	switch resource {
	case ScheduleEvents:
		orderBy = "se.start_datetime ASC"
		if p.InstitutionID != "" {
			clauses = append(clauses, "se.institution_id = ?")
			args = append(args, p.InstitutionID)
		}
		switch p.Role {
		case model.RoleStudent:
			clauses = append(clauses, "se.class_id IN (SELECT e.class_id FROM enrollments e WHERE e.student_id = ? AND e.status = 'active')")
			args = append(args, p.UserID)
		case model.RoleTeacher:
			clauses = append(clauses, "(se.creator_id = ? OR se.class_id IN (SELECT tc.id FROM classes tc WHERE tc.teacher_id = ?))")
			args = append(args, p.UserID, p.UserID)
		case model.RoleAdmin:
			// Full visibility within the tenant clause above.
		}
	case ClassSections:
		if p.InstitutionID != "" {
			clauses = append(clauses, "c.institution_id = ?")
			args = append(args, p.InstitutionID)
		}
		switch p.Role {
		case model.RoleStudent:
			clauses = append(clauses, "c.id IN (SELECT e.class_id FROM enrollments e WHERE e.student_id = ? AND e.status = 'active')")
			args = append(args, p.UserID)
		case model.RoleTeacher:
			clauses = append(clauses, "c.teacher_id = ?")
			args = append(args, p.UserID)
		case model.RoleAdmin:
		}
	case Notifications:
		// Owner-scoped for every role, admins included.
		clauses = append(clauses, "n.user_id = ?")
		args = append(args, p.UserID)
	default:
		return Predicate{}, apperr.New(apperr.KindInvalidResource, "invalid_resource")
	}

	for _, f := range filters {
		if f.Expr == "" {
			continue
		}
		if strings.Count(f.Expr, "?") != len(f.Args) {
			return Predicate{}, apperr.New(apperr.KindInvalidResource, "invalid_filter")
		}
		clauses = append(clauses, f.Expr)
		args = append(args, f.Args...)
	}

	where := "TRUE"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}
	return Predicate{
		Where:   rebind(where, 1),
		Args:    args,
		OrderBy: orderBy,
	}, nil
}

// rebind rewrites '?' placeholders as sequential $n placeholders beginning
// at start.
func rebind(expr string, start int) string {
	var b strings.Builder
	n := start
	for _, r := range expr {
		if r == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
