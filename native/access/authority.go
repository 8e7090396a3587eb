package access

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role identifiers recognised by the sale ledger. Roles form an explicit
// capability table: holding one role never implies another.
const (
	RoleSuperAdmin = "ROLE_SUPER_ADMIN"
	RoleAdmin      = "ROLE_ADMIN"
	RoleOperator   = "ROLE_OPERATOR"
	RoleMinter     = "ROLE_MINTER"
)

var knownRoles = map[string]struct{}{
	RoleSuperAdmin: {},
	RoleAdmin:      {},
	RoleOperator:   {},
	RoleMinter:     {},
}

var (
	// ErrUnauthorized is returned when a caller lacks the role required for
	// an operation.
	ErrUnauthorized = errors.New("access: caller lacks required role")

	errNilStore = errors.New("access: storage not configured")
)

// Storage abstracts the subset of state functionality required by the role
// table.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var rolePrefix = []byte("access/role/")

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return buf
}

// Authority manages the role capability table. Grants and revocations are
// restricted to super admins; reads are unrestricted.
type Authority struct {
	store Storage
}

// NewAuthority creates an authority over the provided storage backend.
func NewAuthority(store Storage) *Authority {
	return &Authority{store: store}
}

func normalizeRole(role string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(role))
	if trimmed == "" {
		return "", fmt.Errorf("access: role must not be empty")
	}
	if _, ok := knownRoles[trimmed]; !ok {
		return "", fmt.Errorf("access: unknown role %q", role)
	}
	return trimmed, nil
}

// Members returns all addresses currently holding the role.
func Members(store Storage, role string) ([][20]byte, error) {
	if store == nil {
		return nil, errNilStore
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return nil, err
	}
	var raw [][]byte
	ok, err := store.KVGet(roleKey(normalized), &raw)
	if err != nil {
		return nil, fmt.Errorf("access: load role %s: %w", normalized, err)
	}
	if !ok {
		return nil, nil
	}
	members := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("access: corrupt member entry for role %s", normalized)
		}
		var addr [20]byte
		copy(addr[:], entry)
		members = append(members, addr)
	}
	return members, nil
}

// HasRole reports whether the address holds the role. Read errors resolve to
// false so callers can use the check directly in guard clauses.
func HasRole(store Storage, role string, addr [20]byte) bool {
	members, err := Members(store, role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}

func putMembers(store Storage, role string, members [][20]byte) error {
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i][:], members[j][:]) < 0
	})
	raw := make([][]byte, 0, len(members))
	for _, member := range members {
		entry := make([]byte, 20)
		copy(entry, member[:])
		raw = append(raw, entry)
	}
	return store.KVPut(roleKey(role), raw)
}

// SetRole associates an address with the role without an authorization check.
// It is intended for genesis seeding only; runtime mutations go through Grant.
func SetRole(store Storage, role string, addr [20]byte) error {
	if store == nil {
		return errNilStore
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return err
	}
	members, err := Members(store, normalized)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == addr {
			return nil
		}
	}
	return putMembers(store, normalized, append(members, addr))
}

// Require returns ErrUnauthorized unless the address holds the role.
func (a *Authority) Require(role string, addr [20]byte) error {
	if a == nil || a.store == nil {
		return errNilStore
	}
	if !HasRole(a.store, role, addr) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, role)
	}
	return nil
}

// Grant assigns the role to the address. Only super admins may grant roles.
// Duplicate grants are a no-op.
func (a *Authority) Grant(role string, addr, caller [20]byte) error {
	if a == nil || a.store == nil {
		return errNilStore
	}
	if err := a.Require(RoleSuperAdmin, caller); err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("access: zero address cannot hold a role")
	}
	return SetRole(a.store, role, addr)
}

// Revoke removes the role from the address. Only super admins may revoke.
// Revoking an absent membership is a no-op.
func (a *Authority) Revoke(role string, addr, caller [20]byte) error {
	if a == nil || a.store == nil {
		return errNilStore
	}
	if err := a.Require(RoleSuperAdmin, caller); err != nil {
		return err
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return err
	}
	members, err := Members(a.store, normalized)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, member := range members {
		if member != addr {
			filtered = append(filtered, member)
		}
	}
	if len(filtered) == len(members) {
		return nil
	}
	return putMembers(a.store, normalized, filtered)
}
