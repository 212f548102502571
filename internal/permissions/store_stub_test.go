package permissions

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"
)

// memoryStore is an in-memory Store and GraphStore used across the package
// tests. Call counters let tests assert that cached checks skip the store.
type memoryStore struct {
	mu sync.Mutex

	permsByKey map[string]Permission
	nextPermID int64
	roles      []Role
	graphBumps int
	employees  map[int64][]int64
	grants     map[[2]int64]bool

	failAll error

	permissionByKeyCalls int
	directRoleCalls      int
	grantedRoleCalls     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		permsByKey: make(map[string]Permission),
		employees:  make(map[int64][]int64),
		grants:     make(map[[2]int64]bool),
	}
}

func (s *memoryStore) addRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = append(s.roles, role)
	s.graphBumps++
}

func (s *memoryStore) addPermission(key string) Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPermID++
	p := Permission{ID: s.nextPermID, Key: key, Active: true}
	s.permsByKey[key] = p
	return p
}

func (s *memoryStore) assign(employeeID int64, roleIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[employeeID] = append(s.employees[employeeID], roleIDs...)
}

func (s *memoryStore) setGrant(roleID int64, key string, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[[2]int64{roleID, s.permsByKey[key].ID}] = granted
}

func (s *memoryStore) UpsertPermissions(_ context.Context, defs []Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	for _, def := range defs {
		action, resource, _, err := ParseKey(def.Key)
		if err != nil {
			return err
		}
		if existing, ok := s.permsByKey[def.Key]; ok {
			existing.Description = def.Description
			s.permsByKey[def.Key] = existing
			continue
		}
		s.nextPermID++
		s.permsByKey[def.Key] = Permission{
			ID:           s.nextPermID,
			Key:          def.Key,
			ResourceType: resource,
			ActionType:   action,
			Description:  def.Description,
			Active:       true,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
	}
	return nil
}

func (s *memoryStore) ListPermissions(context.Context) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	perms := make([]Permission, 0, len(s.permsByKey))
	for _, p := range s.permsByKey {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key < perms[j].Key })
	return perms, nil
}

func (s *memoryStore) PermissionByKey(_ context.Context, key string) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissionByKeyCalls++
	if s.failAll != nil {
		return Permission{}, s.failAll
	}
	p, ok := s.permsByKey[key]
	if !ok {
		return Permission{}, ErrUnknownPermission
	}
	return p, nil
}

func (s *memoryStore) RoleGraph(context.Context) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	roles := make([]Role, len(s.roles))
	copy(roles, s.roles)
	return roles, nil
}

func (s *memoryStore) GraphVersion(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return "", s.failAll
	}
	return strconv.Itoa(s.graphBumps), nil
}

func (s *memoryStore) DirectRoleIDs(_ context.Context, employeeID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directRoleCalls++
	if s.failAll != nil {
		return nil, s.failAll
	}
	ids := make([]int64, len(s.employees[employeeID]))
	copy(ids, s.employees[employeeID])
	return ids, nil
}

func (s *memoryStore) GrantedRole(_ context.Context, permissionID int64, roleIDs []int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantedRoleCalls++
	if s.failAll != nil {
		return "", false, s.failAll
	}
	for _, roleID := range roleIDs {
		if s.grants[[2]int64{roleID, permissionID}] {
			for _, role := range s.roles {
				if role.ID == roleID {
					return role.Name, true, nil
				}
			}
			return "", true, nil
		}
	}
	return "", false, nil
}

func (s *memoryStore) GrantedPermissions(_ context.Context, roleIDs []int64) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	seen := make(map[int64]struct{})
	var perms []Permission
	for _, p := range s.permsByKey {
		for _, roleID := range roleIDs {
			if s.grants[[2]int64{roleID, p.ID}] {
				if _, dup := seen[p.ID]; !dup {
					seen[p.ID] = struct{}{}
					perms = append(perms, p)
				}
				break
			}
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key < perms[j].Key })
	return perms, nil
}

func (s *memoryStore) SetGrant(_ context.Context, roleID int64, key string, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	p, ok := s.permsByKey[key]
	if !ok {
		return ErrUnknownPermission
	}
	s.grants[[2]int64{roleID, p.ID}] = granted
	return nil
}

// BulkSetGrants applies all keys or none, mirroring the transactional
// rollout of the real repository.
func (s *memoryStore) BulkSetGrants(_ context.Context, roleID int64, keys []string, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	staged := make([][2]int64, 0, len(keys))
	for _, key := range keys {
		p, ok := s.permsByKey[key]
		if !ok {
			return ErrUnknownPermission
		}
		staged = append(staged, [2]int64{roleID, p.ID})
	}
	for _, pair := range staged {
		s.grants[pair] = granted
	}
	return nil
}

func (s *memoryStore) RoleGrants(_ context.Context, roleID int64) ([]Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	var grants []Grant
	for _, p := range s.permsByKey {
		if granted, ok := s.grants[[2]int64{roleID, p.ID}]; ok {
			grants = append(grants, Grant{
				RoleID:        roleID,
				PermissionID:  p.ID,
				PermissionKey: p.Key,
				IsGranted:     granted,
			})
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].PermissionKey < grants[j].PermissionKey })
	return grants, nil
}

func (s *memoryStore) AssignRole(_ context.Context, employeeID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	for _, existing := range s.employees[employeeID] {
		if existing == roleID {
			return nil
		}
	}
	s.employees[employeeID] = append(s.employees[employeeID], roleID)
	return nil
}

func (s *memoryStore) RemoveRole(_ context.Context, employeeID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	kept := s.employees[employeeID][:0]
	removed := false
	for _, existing := range s.employees[employeeID] {
		if existing == roleID {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	s.employees[employeeID] = kept
	if !removed {
		return ErrNotFound
	}
	return nil
}

func (s *memoryStore) storeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionByKeyCalls + s.directRoleCalls + s.grantedRoleCalls
}

func (s *memoryStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

var errStoreDown = errors.New("store unavailable")
