// Package model defines the domain types shared across the pipeline: the
// script manifest, the immutable script package, execution results and the
// closed status/risk/priority enumerations.
package model
