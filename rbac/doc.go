// Package rbac defines the role and permission catalog and seeds it into a
// credential store.
//
// A [Catalog] is built during initialization, frozen, and then treated as
// immutable. [Seed] is idempotent: it creates missing roles and permissions,
// adds missing role bundles, and optionally creates a bootstrap admin.
package rbac
