// Package httputil maps authorization errors to HTTP responses and carries
// request metadata into the context.
//
// Embedding services translate errors from the authorization packages with
// WriteAppError:
//
//	perms, err := manager.EffectivePermissions(ctx, userID, orgID, time.Now())
//	if err != nil {
//		httputil.WriteAppError(w, err)
//		return
//	}
//
// RequestContextMiddleware fills contextkeys.RequestID, ClientIP and
// UserAgent so audit events and risk scoring see the caller.
package httputil
