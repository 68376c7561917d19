// Package order defines the order record, its validation rules and the
// error kinds shared by the stores and the intake service.
package order
