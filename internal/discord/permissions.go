package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a member holds the DJ role before
// privileged commands such as register.
type PermissionChecker struct {
	djRoleID string
}

// NewPermissionChecker creates a PermissionChecker with the given DJ role ID.
func NewPermissionChecker(djRoleID string) *PermissionChecker {
	return &PermissionChecker{djRoleID: djRoleID}
}

// IsDJ checks whether member has the configured DJ role.
// If djRoleID is empty, everyone is a DJ.
// Returns false for a nil member (e.g., direct message interactions).
func (p *PermissionChecker) IsDJ(member *discordgo.Member) bool {
	if p == nil || p.djRoleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, p.djRoleID)
}
