package bridge

// AccessPolicy decides which users may drive sessions and projects.
type AccessPolicy interface {
	Allowed(userID string) bool
}

type allowAll struct{}

func (allowAll) Allowed(string) bool { return true }

// AllowAll permits every user.
func AllowAll() AccessPolicy { return allowAll{} }

type allowList map[string]struct{}

func (l allowList) Allowed(userID string) bool {
	_, ok := l[userID]
	return ok
}

// AllowUsers permits only the listed user IDs. An empty list falls back
// to allowing everyone.
func AllowUsers(ids []string) AccessPolicy {
	if len(ids) == 0 {
		return AllowAll()
	}
	l := make(allowList, len(ids))
	for _, id := range ids {
		l[id] = struct{}{}
	}
	return l
}
