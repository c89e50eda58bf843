package auth

// Role is the kind of user a token belongs to.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// Action is a capability checked before an operation runs.
type Action string

const (
	ActionManageCourses  Action = "courses:manage"
	ActionManageStudents Action = "students:manage"
	ActionManageSessions Action = "sessions:manage"
	ActionMarkAttendance Action = "attendance:mark"
	ActionCheckin        Action = "attendance:checkin"
	ActionViewReports    Action = "reports:view"
	ActionViewOwn        Action = "reports:own"
	ActionImport         Action = "students:import"
	ActionIssueTokens    Action = "tokens:issue"
)

var grants = map[Role][]Action{
	RoleStudent: {
		ActionCheckin, ActionViewOwn,
	},
	RoleInstructor: {
		ActionManageSessions, ActionMarkAttendance, ActionViewReports, ActionViewOwn, ActionImport,
	},
	RoleAdmin: {
		ActionManageCourses, ActionManageStudents, ActionManageSessions, ActionMarkAttendance,
		ActionViewReports, ActionViewOwn, ActionImport, ActionIssueTokens,
	},
}

// Can is the single authorization check: may the holder of c perform a?
func Can(c Claims, a Action) bool {
	for _, g := range grants[c.Role] {
		if g == a {
			return true
		}
	}
	return false
}

// CanViewStudent allows staff with report access, or the student themself.
func CanViewStudent(c Claims, studentID string) bool {
	if Can(c, ActionViewReports) {
		return true
	}
	return Can(c, ActionViewOwn) && c.StudentID != "" && c.StudentID == studentID
}
