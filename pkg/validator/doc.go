// Package validator validates request payloads with struct tags through
// github.com/go-playground/validator/v10 and reports failures as Errors,
// keyed by the JSON field name so clients can map them back to inputs.
package validator
