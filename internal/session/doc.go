// Package session owns the client's authentication state.
//
// [Store] is the session state machine:
//
//	anonymous ──Login──▶ authenticating ──ok──▶ authenticated
//	    ▲                      │                     │
//	    │                    fail                  Logout
//	    │                      ▼                     │
//	    └────ClearError──── error ◀──────────────────┘ (to anonymous)
//
// After every transition IsAuthenticated holds exactly when both User and
// Token are set.
//
// The raw token is the only credential the rest of the client trusts. It is
// written to durable storage under [storage.KeyAuthToken], where the REST
// client reads it per request. A serialized copy of the session is also
// persisted under [storage.KeySession], but it is only a cache: a new Store
// always starts anonymous and [Gate.CheckAuth] revalidates the token against
// the backend before the session becomes authenticated again.
package session
