package service

import "github.com/ticketflow/backend/internal/models"

// Permission effect sets for ticket channels and category groups. The order
// matters: the gateway applies the tuples as given.

func ticketOpenEffects(ownerID, modRoleID string) []models.PermissionEffect {
	effects := []models.PermissionEffect{
		{
			Principal: models.Principal{Type: models.PrincipalEveryone},
			Deny:      []string{models.PermView, models.PermRead},
		},
		{
			Principal: models.Principal{Type: models.PrincipalUser, ID: ownerID},
			Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermAttach, models.PermEmbed},
		},
		{
			Principal: models.Principal{Type: models.PrincipalSelf},
			Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermAttach, models.PermEmbed, models.PermManageMessages, models.PermManageChannel},
		},
	}
	if modRoleID != "" {
		effects = append(effects, models.PermissionEffect{
			Principal: models.Principal{Type: models.PrincipalRole, ID: modRoleID},
			Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermAttach, models.PermEmbed, models.PermManageMessages},
		})
	}
	return effects
}

// ticketArchiveEffects keeps the owner reading but not writing, hides the
// channel from everyone else, and retains moderator and self access.
func ticketArchiveEffects(ownerID, modRoleID string) []models.PermissionEffect {
	effects := []models.PermissionEffect{
		{
			Principal: models.Principal{Type: models.PrincipalEveryone},
			Deny:      []string{models.PermView, models.PermSend},
		},
	}
	if ownerID != "" {
		effects = append(effects, models.PermissionEffect{
			Principal: models.Principal{Type: models.PrincipalUser, ID: ownerID},
			Allow:     []string{models.PermView, models.PermRead},
			Deny:      []string{models.PermSend},
		})
	}
	if modRoleID != "" {
		effects = append(effects, models.PermissionEffect{
			Principal: models.Principal{Type: models.PrincipalRole, ID: modRoleID},
			Allow:     []string{models.PermView, models.PermRead, models.PermManageChannel},
			Deny:      []string{models.PermSend},
		})
	}
	effects = append(effects, models.PermissionEffect{
		Principal: models.Principal{Type: models.PrincipalSelf},
		Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermManageChannel},
	})
	return effects
}

func groupActiveEffects(modRoleID string) []models.PermissionEffect {
	effects := []models.PermissionEffect{
		{
			Principal: models.Principal{Type: models.PrincipalEveryone},
			Deny:      []string{models.PermView, models.PermRead},
		},
		{
			Principal: models.Principal{Type: models.PrincipalSelf},
			Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermManageChannel},
		},
	}
	if modRoleID != "" {
		effects = append(effects, models.PermissionEffect{
			Principal: models.Principal{Type: models.PrincipalRole, ID: modRoleID},
			Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermManageChannel},
		})
	}
	return effects
}

func groupArchiveEffects(modRoleID string) []models.PermissionEffect {
	effects := []models.PermissionEffect{
		{
			Principal: models.Principal{Type: models.PrincipalEveryone},
			Deny:      []string{models.PermView, models.PermRead},
		},
		{
			Principal: models.Principal{Type: models.PrincipalSelf},
			Allow:     []string{models.PermView, models.PermRead, models.PermSend, models.PermManageChannel},
		},
	}
	if modRoleID != "" {
		effects = append(effects, models.PermissionEffect{
			Principal: models.Principal{Type: models.PrincipalRole, ID: modRoleID},
			Allow:     []string{models.PermView, models.PermRead, models.PermManageChannel},
			Deny:      []string{models.PermSend},
		})
	}
	return effects
}
