// Package plan holds the subscription plan catalog: tier definitions with
// per-resource quotas, price and trial allowance.
//
// Quotas are expressed per Resource (vehicles, users, drivers). The sentinel
// Unlimited (-1) means "no cap". Plans are validated on load so every plan
// defines a limit for every resource.
//
// Catalog is the read interface used by the rest of the system. Implementations:
//
//   - MemoryCatalog: static plans, used by tests and the in-memory deployment
//   - storage/postgres PlanStore: admin-managed plans in the plans table
//   - CachedCatalog: LRU decorator in front of a slower catalog
//
// Plans can be seeded from YAML with LoadFile.
package plan
