package domain

// UserPlan enumerates billing plans. Only the priority tier is derived from
// it here.
type UserPlan string

const (
	UserPlanFree      UserPlan = "free"
	UserPlanPro       UserPlan = "pro"
	UserPlanSupporter UserPlan = "supporter"
	UserPlanBusiness  UserPlan = "business"
)

// Tier is a priority partition of the queue.
type Tier string

const (
	TierHigh Tier = "high"
	TierLow  Tier = "low"
)

const (
	PriorityHigh = 10
	PriorityLow  = 1
)

var privilegedPlans = map[UserPlan]bool{
	UserPlanPro:       true,
	UserPlanSupporter: true,
	UserPlanBusiness:  true,
}

// TierForPlan maps a plan to its queue tier and numeric priority.
func TierForPlan(plan UserPlan) (Tier, int) {
	if privilegedPlans[plan] {
		return TierHigh, PriorityHigh
	}
	return TierLow, PriorityLow
}

// TierForPriority derives the tier for an explicit priority value.
func TierForPriority(priority int) Tier {
	if priority >= PriorityHigh {
		return TierHigh
	}
	return TierLow
}

// TierForOverride applies an explicit priority within the limits of plan. A
// plan in the low tier keeps its priority below PriorityHigh, so an override
// can lower the tier but never raise it.
func TierForOverride(plan UserPlan, priority int) (Tier, int) {
	if tier, _ := TierForPlan(plan); tier == TierLow && priority >= PriorityHigh {
		priority = PriorityHigh - 1
	}
	return TierForPriority(priority), priority
}

// Caller is the authenticated identity making a request.
type Caller struct {
	UserID      string
	Plan        UserPlan
	WorkspaceID string
}

// IsZero reports whether no identity was resolved.
func (c Caller) IsZero() bool {
	return c.UserID == ""
}

// User is the slice of an account the queue cares about.
type User struct {
	ID    string
	Email string
	Plan  UserPlan
}

// ValidPlan reports whether plan is a known billing plan.
func ValidPlan(plan UserPlan) bool {
	switch plan {
	case UserPlanFree, UserPlanPro, UserPlanSupporter, UserPlanBusiness:
		return true
	}
	return false
}
