// Package cache is the client-resident synchronization cache for the
// todo list: the single in-memory source of truth for "the list as last
// known", reconciled against the remote data service.
//
// Architecture:
//
//	             Get / Snapshot                Mutate(create|update|delete)
//	                  |                                    |
//	                  v                                    v
//	          +---------------+   invalidate      +----------------+
//	          |  Store        |<------------------| data layer call|
//	          |  data, stale, |                   | (exactly once) |
//	          |  in-flight    |                   +----------------+
//	          +---------------+
//	                  |
//	                  v  single-flight read, one automatic retry
//	            remote.ListTodos
//
// Properties the store maintains:
//   - One network read in flight at a time; concurrent readers join the
//     same outcome instead of issuing duplicate calls.
//   - Stale-while-revalidate: last-known data stays visible during a
//     background refresh; a failed refresh keeps it too.
//   - Staleness comes only from explicit invalidation, never a TTL.
//   - Every successful mutation invalidates the key and triggers an
//     immediate refetch, so server-assigned fields (id, created_at)
//     arrive with the authoritative post-mutation list.
//   - Mutations are never applied optimistically to the cached list.
//
// An invalidation that lands while a read is in flight does not cancel
// it; a follow-up read is scheduled after the current one completes, so
// the last successful refetch always reflects all completed mutations.
package cache
