// Package domain holds the license service's core entities and the
// business rules that govern them: brands, products, license keys,
// licenses, activations, API keys and webhook subscriptions.
//
// Entities are plain values. Lifecycle transitions return a modified
// copy and an error instead of mutating in place; persistence is the
// repository layer's concern. Every rule violation is reported as a
// *domain.Error carrying a stable machine-readable code that the HTTP
// boundary maps to a status.
package domain
