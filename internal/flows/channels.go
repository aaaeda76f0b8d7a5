package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

type RecoveryChannel struct {
	Type      string
	Value     string
	Verified  bool
	Preferred bool
}

// ChannelDefinition binds a channel type to the claims describing it.
type ChannelDefinition struct {
	Type        string
	ValueClaim  string
	VerifyClaim string
}

type SelectChannelsErrors struct {
	EngineNotReady       error
	NoChannelsConfigured error
	NoVerifiedChannels   error
	ClaimsUnavailable    error
}

type SelectChannelsDeps struct {
	Channels            []ChannelDefinition
	PreferredClaim      string
	RolesClaim          string
	RoleSeparator       string
	SelfSignupRole      string
	ExternalChannelType string

	GetClaimValues func(ctx context.Context, tenantID int, username string, claimURIs []string) (map[string]string, error)

	Logger *slog.Logger
	Errors SelectChannelsErrors
}

// RequiredChannelClaims lists the value and verified claim of every channel,
// then the preferred channel claim and the roles claim.
func RequiredChannelClaims(channels []ChannelDefinition, preferredClaim, rolesClaim string) []string {
	claims := make([]string, 0, len(channels)*2+2)
	for _, ch := range channels {
		claims = append(claims, ch.ValueClaim, ch.VerifyClaim)
	}
	return append(claims, preferredClaim, rolesClaim)
}

// RunSelectChannels returns the channels a user may be contacted on. Raw
// usernames are passed to the directory unchanged.
func RunSelectChannels(ctx context.Context, tenantID int, username string, internallyManaged bool, deps SelectChannelsDeps) ([]RecoveryChannel, error) {
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}

	if !internallyManaged {
		return []RecoveryChannel{{Type: deps.ExternalChannelType}}, nil
	}
	if deps.GetClaimValues == nil || len(deps.Channels) == 0 {
		return nil, deps.Errors.EngineNotReady
	}

	required := RequiredChannelClaims(deps.Channels, deps.PreferredClaim, deps.RolesClaim)
	values, err := deps.GetClaimValues(ctx, tenantID, username, required)
	if err != nil {
		deps.Logger.DebugContext(ctx, "loading user claims failed", slog.Any("error", err))
		return nil, errors.Join(deps.Errors.ClaimsUnavailable, err)
	}
	if len(values) == 0 {
		return nil, deps.Errors.NoChannelsConfigured
	}

	selfRegistered := hasRole(values[deps.RolesClaim], deps.RoleSeparator, deps.SelfSignupRole)
	preferred := values[deps.PreferredClaim]

	channels := make([]RecoveryChannel, 0, len(deps.Channels))
	for _, def := range deps.Channels {
		value := values[def.ValueClaim]
		if value == "" {
			continue
		}
		verified := strings.EqualFold(strings.TrimSpace(values[def.VerifyClaim]), "true")
		if selfRegistered && !verified {
			continue
		}
		channels = append(channels, RecoveryChannel{
			Type:      def.Type,
			Value:     value,
			Verified:  verified,
			Preferred: preferred != "" && preferred == def.Type,
		})
	}

	if len(channels) == 0 {
		return nil, deps.Errors.NoVerifiedChannels
	}
	return channels, nil
}

func hasRole(roles, separator, role string) bool {
	if roles == "" || role == "" {
		return false
	}
	if separator == "" {
		separator = ","
	}
	for _, r := range strings.Split(roles, separator) {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}
