package rbac

import (
	"errors"
	"sort"
	"sync"
)

// Role names.
const (
	RoleUser      = "ROLE_USER"
	RoleStudent   = "ROLE_STUDENT"
	RoleCourseRep = "ROLE_COURSE_REP"
	RoleLecturer  = "ROLE_LECTURER"
	RoleAdmin     = "ROLE_ADMIN"
)

// Permission names.
const (
	ProfileView    = "PROFILE_VIEW"
	ProfileUpdate  = "PROFILE_UPDATE"
	AccountView    = "ACCOUNT_VIEW"
	PasswordChange = "PASSWORD_CHANGE"

	CourseView              = "COURSE_VIEW"
	CourseEnroll            = "COURSE_ENROLL"
	AssignmentView          = "ASSIGNMENT_VIEW"
	AssignmentSubmit        = "ASSIGNMENT_SUBMIT"
	CourseMaterialView      = "COURSE_MATERIAL_VIEW"
	ClassFeedbackSubmit     = "CLASS_FEEDBACK_SUBMIT"
	GeneralAnnouncementView = "GENERAL_ANNOUNCEMENT_VIEW"

	ClassAnnouncementView  = "CLASS_ANNOUNCEMENT_VIEW"
	ClassAnnouncementRelay = "CLASS_ANNOUNCEMENT_RELAY"
	ClassFeedbackCollect   = "CLASS_FEEDBACK_COLLECT"
	ClassFeedbackForward   = "CLASS_FEEDBACK_FORWARD"

	CourseCreate            = "COURSE_CREATE"
	CourseDelete            = "COURSE_DELETE"
	CourseUpdate            = "COURSE_UPDATE"
	CoursePublish           = "COURSE_PUBLISH"
	CourseRepAssign         = "COURSE_REP_ASSIGN"
	StudentView             = "STUDENT_VIEW"
	CourseMaterialCreate    = "COURSE_MATERIAL_CREATE"
	CourseMaterialUpdate    = "COURSE_MATERIAL_UPDATE"
	CourseMaterialDelete    = "COURSE_MATERIAL_DELETE"
	AssignmentCreate        = "ASSIGNMENT_CREATE"
	AssignmentGrade         = "ASSIGNMENT_GRADE"
	ClassFeedbackView       = "CLASS_FEEDBACK_VIEW"
	ClassAnnouncementCreate = "CLASS_ANNOUNCEMENT_CREATE"

	RoleAssign       = "ROLE_ASSIGN"
	PermissionAssign = "PERMISSION_ASSIGN"
	UserManage       = "USER_MANAGE"
)

// Catalog is the set of known permission names and the default permission
// bundle of each role.
type Catalog struct {
	mu          sync.RWMutex
	permissions map[string]struct{}
	order       []string
	roles       map[string][]string
	roleOrder   []string
	frozen      bool
}

// NewCatalog returns an empty, unfrozen catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		permissions: make(map[string]struct{}),
		roles:       make(map[string][]string),
	}
}

// RegisterPermission adds a permission name.
func (c *Catalog) RegisterPermission(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return errors.New("catalog frozen")
	}
	if name == "" {
		return errors.New("permission name cannot be empty")
	}
	if _, exists := c.permissions[name]; exists {
		return errors.New("permission already registered")
	}
	c.permissions[name] = struct{}{}
	c.order = append(c.order, name)
	return nil
}

// RegisterRole adds a role with its default bundle. Every permission in the
// bundle must already be registered.
func (c *Catalog) RegisterRole(name string, permissions ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return errors.New("catalog frozen")
	}
	if name == "" {
		return errors.New("role name empty")
	}
	if _, exists := c.roles[name]; exists {
		return errors.New("role already registered")
	}
	bundle := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if _, ok := c.permissions[p]; !ok {
			return errors.New("permission not registered: " + p)
		}
		bundle = append(bundle, p)
	}
	c.roles[name] = bundle
	c.roleOrder = append(c.roleOrder, name)
	return nil
}

// Freeze prevents further registrations.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Permissions returns every permission in registration order.
func (c *Catalog) Permissions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Roles returns every role name in registration order.
func (c *Catalog) Roles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.roleOrder...)
}

// Bundle returns the sorted default permissions of role.
func (c *Catalog) Bundle(role string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.roles[role]
	if !ok {
		return nil, false
	}
	out := append([]string(nil), b...)
	sort.Strings(out)
	return out, true
}

// HasPermission reports whether name is registered.
func (c *Catalog) HasPermission(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.permissions[name]
	return ok
}

// HasRole reports whether name is registered.
func (c *Catalog) HasRole(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.roles[name]
	return ok
}

// DefaultCatalog returns the frozen built-in catalog.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, p := range []string{
		ProfileView, ProfileUpdate, AccountView, PasswordChange,
		CourseView, CourseEnroll, AssignmentView, AssignmentSubmit,
		CourseMaterialView, ClassFeedbackSubmit, GeneralAnnouncementView,
		ClassAnnouncementView, ClassAnnouncementRelay, ClassFeedbackCollect, ClassFeedbackForward,
		CourseCreate, CourseDelete, CourseUpdate, CoursePublish, CourseRepAssign, StudentView,
		CourseMaterialCreate, CourseMaterialUpdate, CourseMaterialDelete,
		AssignmentCreate, AssignmentGrade, ClassFeedbackView, ClassAnnouncementCreate,
		RoleAssign, PermissionAssign, UserManage,
	} {
		mustDo(c.RegisterPermission(p))
	}

	mustDo(c.RegisterRole(RoleUser, ProfileView, ProfileUpdate, AccountView, PasswordChange))
	mustDo(c.RegisterRole(RoleStudent,
		CourseView, AssignmentSubmit, CourseEnroll, AssignmentView,
		CourseMaterialView, ClassFeedbackSubmit, GeneralAnnouncementView,
	))
	mustDo(c.RegisterRole(RoleCourseRep,
		ClassAnnouncementView, ClassFeedbackCollect, ClassAnnouncementRelay, ClassFeedbackForward,
	))
	mustDo(c.RegisterRole(RoleLecturer,
		AssignmentGrade, AssignmentCreate, CourseCreate, CourseDelete, CourseUpdate,
		CoursePublish, CourseRepAssign, StudentView, CourseMaterialCreate,
		CourseMaterialUpdate, CourseMaterialDelete, ClassFeedbackView, ClassAnnouncementCreate,
	))
	mustDo(c.RegisterRole(RoleAdmin, RoleAssign, PermissionAssign, UserManage))

	c.Freeze()
	return c
}

func mustDo(err error) {
	if err != nil {
		panic("rbac: default catalog: " + err.Error())
	}
}
