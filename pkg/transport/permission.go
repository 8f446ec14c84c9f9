package transport

import "github.com/nearbeam/nearbeam/pkg/peer"

// PermissionGate is consulted by every transport before any discovery or
// connect call touches the medium. A denial surfaces as
// errs.PermissionDenied without the operation being attempted.
type PermissionGate interface {
	HasRequiredPermissions(medium peer.Kind) bool
}

// AllowAll grants every permission. It is the default gate on platforms
// where capability access needs no runtime prompt.
type AllowAll struct{}

// HasRequiredPermissions always reports true.
func (AllowAll) HasRequiredPermissions(peer.Kind) bool { return true }

var _ PermissionGate = AllowAll{}
