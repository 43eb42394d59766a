package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker gates commands by role and by text channel.
type PermissionChecker struct {
	controllerRoleID string
	channels         []string
}

// NewPermissionChecker creates a PermissionChecker. An empty
// controllerRoleID lets everyone control playback; empty channels allows
// commands in every channel.
func NewPermissionChecker(controllerRoleID string, channels []string) *PermissionChecker {
	return &PermissionChecker{
		controllerRoleID: controllerRoleID,
		channels:         slices.Clone(channels),
	}
}

// IsController checks whether the interaction author may start and stop
// playback. Returns false if the interaction has no Member (e.g., DM channel
// interactions) and a role is configured.
func (p *PermissionChecker) IsController(i *discordgo.InteractionCreate) bool {
	if p.controllerRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.controllerRoleID)
}

// AllowedChannel reports whether commands may be used in the interaction's
// text channel.
func (p *PermissionChecker) AllowedChannel(i *discordgo.InteractionCreate) bool {
	if len(p.channels) == 0 {
		return true
	}
	return slices.Contains(p.channels, i.ChannelID)
}
