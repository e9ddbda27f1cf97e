// Package policy evaluates Rego rules against a snapshot of an extracted
// service model.
//
// Rules live in package archextract and contribute objects to the
// violations set; each object becomes a validation finding alongside the
// structural checks of the model itself. A small default rule set is
// embedded; callers may replace it with their own modules.
package policy
