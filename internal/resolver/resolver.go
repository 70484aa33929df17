// Package resolver decides, for a single stack member, which version locator
// it should point at.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/nholik/stack-updater/internal/catalog"
	"github.com/nholik/stack-updater/internal/selector"
	"github.com/nholik/stack-updater/internal/stack"
	"github.com/rs/zerolog"
)

// Descriptor identifies what to ask the catalog for when looking up updates.
type Descriptor struct {
	OfferingID string
	Kind       string
	Flavor     string
	Version    string
}

// Resolver runs the per-member resolution steps against a catalog client.
type Resolver struct {
	logger zerolog.Logger
	client catalog.Client
}

// New constructs a Resolver.
func New(logger zerolog.Logger, client catalog.Client) *Resolver {
	return &Resolver{logger: logger, client: client}
}

// Resolve walks member through parse, lookup, selection and comparison. Every
// error is folded into a Failed outcome. The member's locator is rewritten
// only when the outcome is Updated.
func (r *Resolver) Resolve(ctx context.Context, member *stack.Member) (outcome Outcome) {
	logger := r.logger.With().Str("member", member.Name).Logger()
	current := member.VersionLocator

	defer func() {
		if recovered := recover(); recovered != nil {
			member.VersionLocator = current
			outcome = Failed(member.Index, member.Name, current, ReasonUnexpected, "", fmt.Errorf("panic: %v", recovered))
		}
	}()

	logger.Info().Str("version_locator", current).Msg("resolving member")

	if !member.HasLocator() {
		err := &ParseError{Field: "version_locator", Err: member.LocatorError()}
		return r.fail(logger, member, ReasonParse, "", err)
	}
	locator, err := stack.ParseLocator(current)
	if err != nil {
		return r.fail(logger, member, ReasonParse, current, &ParseError{Field: "version_locator", Err: err})
	}

	offering, found, err := r.client.FetchVersion(ctx, current)
	if err != nil {
		return r.fail(logger, member, ReasonFetchVersion, current, err)
	}
	if !found {
		return r.fail(logger, member, ReasonFetchVersion, current, errors.New("version not found"))
	}

	desc, err := Describe(offering)
	if err != nil {
		return r.fail(logger, member, ReasonMetadata, current, err)
	}
	logger.Debug().
		Str("offering_id", desc.OfferingID).
		Str("kind", desc.Kind).
		Str("flavor", desc.Flavor).
		Str("current_version", desc.Version).
		Msg("current version")

	candidates, err := r.client.FetchUpdates(ctx, desc.OfferingID, locator.CatalogID, desc.Kind, desc.Flavor)
	if err != nil {
		return r.fail(logger, member, ReasonFetchUpdates, desc.OfferingID, err)
	}

	latest, ok, err := selector.SelectLatest(candidates)
	if err != nil {
		return r.fail(logger, member, ReasonNoValidUpdate, desc.OfferingID, err)
	}
	if !ok {
		detail := fmt.Sprintf("%s (%d candidates)", desc.OfferingID, len(candidates))
		return r.fail(logger, member, ReasonNoValidUpdate, detail, nil)
	}

	logger.Info().
		Str("current_version", desc.Version).
		Str("latest_version", latest.Version).
		Str("latest_version_locator", latest.VersionLocator).
		Msg("latest valid version")

	// Version strings drive the log line, locators drive the decision. A new
	// locator carrying the same version string still counts as an update.
	if desc.Version != latest.Version {
		logger.Info().Str("version", latest.Version).Msg("newer version available")
	} else {
		logger.Info().Msg("version string unchanged")
	}
	r.warnOnDowngrade(logger, desc.Version, latest.Version)

	var result Outcome
	if current != latest.VersionLocator {
		member.VersionLocator = latest.VersionLocator
		result = Updated(member.Index, member.Name, current, latest.VersionLocator)
		logger.Info().
			Str("from", current).
			Str("to", latest.VersionLocator).
			Msg("member updated")
	} else {
		result = Unchanged(member.Index, member.Name, current)
		logger.Info().Msg("member already up to date")
	}
	result.CurrentVersion = desc.Version
	result.LatestVersion = latest.Version
	return result
}

// Describe extracts the offering id, first kind's format and first version's
// flavor and version string.
func Describe(offering catalog.Offering) (Descriptor, error) {
	if offering.ID == "" {
		return Descriptor{}, &ParseError{Field: "id", Err: errors.New("offering id is empty")}
	}
	if len(offering.Kinds) == 0 {
		return Descriptor{}, &ParseError{Field: "kinds", Err: errors.New("no kinds")}
	}
	kind := offering.Kinds[0]
	if kind.FormatKind == "" {
		return Descriptor{}, &ParseError{Field: "kinds[0].format_kind", Err: errors.New("format kind is empty")}
	}
	if len(kind.Versions) == 0 {
		return Descriptor{}, &ParseError{Field: "kinds[0].versions", Err: errors.New("no versions")}
	}
	version := kind.Versions[0]
	if version.Flavor == nil || version.Flavor.Name == "" {
		return Descriptor{}, &ParseError{Field: "kinds[0].versions[0].flavor.name", Err: errors.New("flavor name is empty")}
	}

	return Descriptor{
		OfferingID: offering.ID,
		Kind:       kind.FormatKind,
		Flavor:     version.Flavor.Name,
		Version:    version.Version,
	}, nil
}

func (r *Resolver) fail(logger zerolog.Logger, member *stack.Member, reason, detail string, err error) Outcome {
	event := logger.Error().Str("reason", reason)
	if detail != "" {
		event = event.Str("detail", detail)
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("member resolution failed")
	return Failed(member.Index, member.Name, member.VersionLocator, reason, detail, err)
}

// The selection ignores semver; this only surfaces a suspicious pick.
func (r *Resolver) warnOnDowngrade(logger zerolog.Logger, current, latest string) {
	from, err := semver.NewVersion(current)
	if err != nil {
		return
	}
	to, err := semver.NewVersion(latest)
	if err != nil {
		return
	}
	if to.LessThan(from) {
		logger.Warn().
			Str("current_version", current).
			Str("latest_version", latest).
			Msg("selected version is older than current version")
	}
}
