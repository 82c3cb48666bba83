// Package validation holds the semantic rules applied to a user's address
// list before it is persisted. Rules never fail fast: every violation found
// in one pass is reported.
package validation

import (
	"fmt"
	"strconv"

	"github.com/civitas/user-service/internal/domain"
	apperrors "github.com/civitas/user-service/pkg/errors"
)

// Issue codes reported by the address rules.
const (
	CodeDetailOrLocationMissing = 200001
	CodeCoordinatesOutOfRange   = 200002
	CodeStateOrProvinceMissing  = 200003
	CodeStateAndProvinceBothSet = 200004
	CodePrimaryAddressCount     = 200005
)

// Coordinate bounds, inclusive.
const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
)

var (
	pathAddresses   = []string{"addresses"}
	pathDetail      = []string{"addresses", "detail"}
	pathCoordinates = []string{"addresses", "location", "coordinates"}
)

// Result is the outcome of validating an address list.
type Result struct {
	issues []apperrors.Issue
}

// OK reports whether no rule was violated.
func (r Result) OK() bool {
	return len(r.issues) == 0
}

// Issues returns the violations in the order they were found.
func (r Result) Issues() []apperrors.Issue {
	return r.issues
}

// Err returns nil when the list is valid, otherwise the 400 ValidationError
// envelope carrying every issue.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return apperrors.ValidationFailed(r.issues)
}

// ValidateAddresses applies the address rules to the full candidate list.
//
// The primary-count issue comes first; the per-address issues follow in
// address order, and within one address in the order presence, detail,
// location. The function is pure and safe for concurrent use.
func ValidateAddresses(addresses []domain.Address) Result {
	var perAddress []apperrors.Issue
	primaries := 0

	for i := range addresses {
		a := &addresses[i]
		if a.IsPrimary {
			primaries++
		}

		if a.Detail == nil && a.Location == nil {
			perAddress = append(perAddress, issue(CodeDetailOrLocationMissing,
				"Either [detail] or [location] property needs to be set for all addresses.", pathAddresses))
		}

		if a.Detail != nil {
			perAddress = append(perAddress, checkDetail(a.Detail)...)
		}

		if a.Location != nil {
			perAddress = append(perAddress, checkLocation(a.Location)...)
		}
	}

	var issues []apperrors.Issue
	if primaries != 1 {
		issues = append(issues, issue(CodePrimaryAddressCount,
			fmt.Sprintf("Exactly one primary address must be set. [%d] found instead.", primaries), pathAddresses))
	}
	issues = append(issues, perAddress...)

	return Result{issues: issues}
}

func checkDetail(d *domain.AddressDetail) []apperrors.Issue {
	switch {
	case !d.HasState() && !d.HasProvince():
		return []apperrors.Issue{issue(CodeStateOrProvinceMissing,
			"Either [state] or [province] property needs to be set for all addresses.", pathDetail)}
	case d.HasState() && d.HasProvince():
		return []apperrors.Issue{issue(CodeStateAndProvinceBothSet,
			"Only one of the [state] or [province] property must be set for all addresses.", pathDetail)}
	}
	return nil
}

func checkLocation(l *domain.GeoLocation) []apperrors.Issue {
	var issues []apperrors.Issue
	if lon, ok := l.Longitude(); ok && !within(lon, MinLongitude, MaxLongitude) {
		issues = append(issues, coordinateIssue("Longitude", lon))
	}
	if lat, ok := l.Latitude(); ok && !within(lat, MinLatitude, MaxLatitude) {
		issues = append(issues, coordinateIssue("Latitude", lat))
	}
	return issues
}

func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func coordinateIssue(axis string, value float64) apperrors.Issue {
	return issue(CodeCoordinatesOutOfRange,
		fmt.Sprintf("Incorrect coordinates format. %s [%s] is not within allowed range", axis, formatCoordinate(value)),
		pathCoordinates)
}

// formatCoordinate renders the shortest decimal form, so 181 prints as "181"
// rather than "181.000000".
func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func issue(code int, message string, path []string) apperrors.Issue {
	p := make([]string, len(path))
	copy(p, path)
	return apperrors.Issue{Code: code, Message: message, Path: p}
}
