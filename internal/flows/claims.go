package flows

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
)

type ResolveUsernameErrors struct {
	EngineNotReady       error
	NoClaimsProvided     error
	NoUserFound          error
	MultipleUsersMatched error
	DirectoryUnavailable error
}

type ResolveUsernameDeps struct {
	FindUsersByClaim     func(ctx context.Context, tenantID int, claimURI, value string) ([]string, error)
	SecondaryStoreExists func(ctx context.Context, tenantID int, domain string) (bool, error)

	Logger *slog.Logger
	Errors ResolveUsernameErrors
}

// RunResolveUsername intersects the directory matches of every non-empty
// claim and returns the single remaining username.
func RunResolveUsername(ctx context.Context, claims map[string]string, tenantID int, deps ResolveUsernameDeps) (string, error) {
	normalizeResolveUsernameDeps(&deps)

	if deps.FindUsersByClaim == nil {
		return "", deps.Errors.EngineNotReady
	}
	if len(claims) == 0 {
		return "", deps.Errors.NoClaimsProvided
	}

	keys := make([]string, 0, len(claims))
	for key := range claims {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var candidates map[string]struct{}
	for _, key := range keys {
		value := claims[key]
		if key == "" || value == "" {
			continue
		}
		deps.Logger.DebugContext(ctx, "searching users by claim", slog.String("claim", key))

		lookup, err := escapeClaimValue(ctx, tenantID, value, deps)
		if err != nil {
			return "", err
		}

		matched, err := deps.FindUsersByClaim(ctx, tenantID, key, lookup)
		if err != nil {
			deps.Logger.DebugContext(ctx, "claim lookup failed", slog.String("claim", key), slog.Any("error", err))
			return "", errors.Join(deps.Errors.DirectoryUnavailable, err)
		}
		if len(matched) == 0 {
			deps.Logger.DebugContext(ctx, "no users matched claim", slog.String("claim", key))
			return "", deps.Errors.NoUserFound
		}

		if candidates == nil {
			candidates = make(map[string]struct{}, len(matched))
			for _, name := range matched {
				candidates[name] = struct{}{}
			}
			continue
		}

		candidates = intersect(candidates, matched)
		if len(candidates) == 0 {
			deps.Logger.DebugContext(ctx, "no user matched all claims", slog.String("claim", key))
			return "", deps.Errors.NoUserFound
		}
	}

	if len(candidates) == 1 {
		for name := range candidates {
			return name, nil
		}
	}

	deps.Logger.DebugContext(ctx, "claims did not identify a single user", slog.Int("candidates", len(candidates)))
	return "", deps.Errors.MultipleUsersMatched
}

// escapeClaimValue prefixes values such as dates that contain "/" but do not
// start with a known user store domain.
func escapeClaimValue(ctx context.Context, tenantID int, value string, deps ResolveUsernameDeps) (string, error) {
	idx := strings.Index(value, "/")
	if idx <= 0 {
		return value, nil
	}

	domain := strings.ToUpper(value[:idx])
	exists, err := deps.SecondaryStoreExists(ctx, tenantID, domain)
	if err != nil {
		return "", errors.Join(deps.Errors.DirectoryUnavailable, err)
	}
	if exists {
		return value, nil
	}
	return "/" + value, nil
}

func intersect(current map[string]struct{}, matched []string) map[string]struct{} {
	next := make(map[string]struct{}, len(current))
	for _, name := range matched {
		if _, ok := current[name]; ok {
			next[name] = struct{}{}
		}
	}
	return next
}

func normalizeResolveUsernameDeps(deps *ResolveUsernameDeps) {
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}
	if deps.SecondaryStoreExists == nil {
		deps.SecondaryStoreExists = func(context.Context, int, string) (bool, error) { return false, nil }
	}
}
